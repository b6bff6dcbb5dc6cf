package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// AdmissionCheck is one eligibility rule evaluated before a seat is reserved.
// Implementations only read state.
type AdmissionCheck interface {
	Name() string
	Priority() int
	Applicable(admission *models.AdmissionContext) bool
	Evaluate(ctx context.Context, admission *models.AdmissionContext) models.AdmissionResult
}

const pipelineCheckName = "admission_pipeline"

// AdmissionPipeline runs registered checks in ascending priority. Checks with equal priority
// keep their registration order.
type AdmissionPipeline struct {
	mu      sync.RWMutex
	checks  []AdmissionCheck
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAdmissionPipeline builds a pipeline and registers the given checks in order.
func NewAdmissionPipeline(metrics *MetricsService, logger *zap.Logger, checks ...AdmissionCheck) *AdmissionPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &AdmissionPipeline{metrics: metrics, logger: logger}
	for _, check := range checks {
		p.Register(check)
	}
	return p
}

// NewDefaultAdmissionPipeline wires the enrollment path checks.
func NewDefaultAdmissionPipeline(seats seatReader, enrollments admissionEnrollmentReader, maxActive int, metrics *MetricsService, logger *zap.Logger) *AdmissionPipeline {
	return NewAdmissionPipeline(metrics, logger,
		NewAvailabilityCheck(seats),
		NewPrerequisitesCheck(enrollments),
		NewEnrollmentLimitCheck(enrollments, maxActive),
		NewDuplicateEnrollmentCheck(enrollments),
	)
}

// Register inserts a check after every check whose priority is lower or equal.
func (p *AdmissionPipeline) Register(check AdmissionCheck) {
	if check == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := sort.Search(len(p.checks), func(i int) bool {
		return p.checks[i].Priority() > check.Priority()
	})
	p.checks = append(p.checks, nil)
	copy(p.checks[idx+1:], p.checks[idx:])
	p.checks[idx] = check
}

// Checks returns the registered check names in execution order.
func (p *AdmissionPipeline) Checks() []string {
	checks := p.snapshot()
	names := make([]string, len(checks))
	for i, check := range checks {
		names[i] = check.Name()
	}
	return names
}

// RunFailFast stops at the first failing check. On success the result lists every check
// that ran under Details["checks"].
func (p *AdmissionPipeline) RunFailFast(ctx context.Context, admission *models.AdmissionContext) models.AdmissionResult {
	checks := p.snapshot()
	ran := make([]string, 0, len(checks))
	for _, check := range checks {
		if !check.Applicable(admission) {
			continue
		}
		result := p.evaluate(ctx, check, admission)
		ran = append(ran, check.Name())
		if !result.Passed {
			p.logger.Info("admission rejected",
				zap.String("check", result.CheckName),
				zap.String("reason_code", result.ReasonCode),
				zap.String("student_id", admission.StudentID),
				zap.String("course_id", admission.CourseID),
			)
			return result
		}
	}
	return models.AdmissionResult{
		Passed:     true,
		CheckName:  pipelineCheckName,
		ReasonCode: models.ReasonAllChecksPassed,
		Details:    map[string]interface{}{"checks": ran},
	}
}

// RunAll evaluates every applicable check regardless of earlier failures.
func (p *AdmissionPipeline) RunAll(ctx context.Context, admission *models.AdmissionContext) models.AdmissionReport {
	report := models.AdmissionReport{IsValid: true, Checks: []string{}, Results: []models.AdmissionResult{}}
	for _, check := range p.snapshot() {
		if !check.Applicable(admission) {
			continue
		}
		result := p.evaluate(ctx, check, admission)
		report.Checks = append(report.Checks, check.Name())
		report.Results = append(report.Results, result)
		if result.Passed {
			report.PassedCount++
		} else {
			report.FailedCount++
			report.IsValid = false
		}
	}
	return report
}

func (p *AdmissionPipeline) snapshot() []AdmissionCheck {
	p.mu.RLock()
	defer p.mu.RUnlock()
	checks := make([]AdmissionCheck, len(p.checks))
	copy(checks, p.checks)
	return checks
}

func (p *AdmissionPipeline) evaluate(ctx context.Context, check AdmissionCheck, admission *models.AdmissionContext) (result models.AdmissionResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("admission check panicked", zap.String("check", check.Name()), zap.Any("panic", r))
			result = evaluationError(check.Name(), fmt.Errorf("panic: %v", r))
		}
		if result.CheckName == "" {
			result.CheckName = check.Name()
		}
		if !result.Passed {
			p.metrics.RecordAdmissionFailure(result.CheckName, result.ReasonCode)
		}
		if result.EvaluationError {
			p.logger.Warn("admission check evaluation failed", zap.String("check", result.CheckName), zap.Error(result.Cause))
		}
	}()
	if err := ctx.Err(); err != nil {
		return evaluationError(check.Name(), err)
	}
	return check.Evaluate(ctx, admission)
}

func evaluationError(checkName string, err error) models.AdmissionResult {
	return models.AdmissionResult{
		Passed:          false,
		CheckName:       checkName,
		Reason:          "admission check could not be evaluated",
		ReasonCode:      models.ReasonEvaluationError,
		EvaluationError: true,
		Cause:           err,
	}
}
