package payment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"lms/apperror"
	"lms/database"
	"lms/models/course"
	"lms/services/catalog"
	"lms/services/enrollment"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeGateway struct {
	mu    sync.Mutex
	err   error
	calls []ChargeRequest
}

func (f *fakeGateway) Name() string { return "fake" }

func (f *fakeGateway) Charge(_ context.Context, req ChargeRequest) (*Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &Charge{Reference: "ws_CO_" + uuid.NewString()[:8], CustomerMessage: "Check your phone"}, nil
}

type fixture struct {
	db          *gorm.DB
	handler     *Handler
	enrollments *enrollment.Store
	gateway     *fakeGateway
	course      course.Course
}

func newFixture(t *testing.T, requiresApproval bool) *fixture {
	t.Helper()
	db, err := database.OpenMemory(uuid.NewString())
	require.NoError(t, err)

	crs := course.Course{Title: "Data engineering", Status: course.CourseStatusActive, Price: 2500, RequiresApproval: requiresApproval}
	require.NoError(t, db.Create(&crs).Error)

	enrollments := enrollment.NewStore(db)
	gw := &fakeGateway{}
	return &fixture{
		db:          db,
		handler:     NewHandler(db, enrollments, catalog.New(db), gw),
		enrollments: enrollments,
		gateway:     gw,
		course:      crs,
	}
}

func (f *fixture) processingPayment(t *testing.T, studentID uint, ref string) course.Payment {
	t.Helper()
	p := course.Payment{
		StudentID:        studentID,
		CourseID:         f.course.ID,
		Amount:           f.course.Price,
		Provider:         ProviderMpesa,
		Status:           course.PaymentProcessing,
		GatewayReference: &ref,
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) events(t *testing.T) []course.PaymentGatewayEvent {
	t.Helper()
	var evs []course.PaymentGatewayEvent
	require.NoError(t, f.db.Order("id asc").Find(&evs).Error)
	return evs
}

func code(c int) *int { return &c }

func TestHandleCallbackSuccess(t *testing.T) {
	f := newFixture(t, false)
	p := f.processingPayment(t, 9, "ws_CO_1")

	out, err := f.handler.HandleCallback(context.Background(), Callback{
		Provider:         ProviderMpesa,
		GatewayReference: "ws_CO_1",
		ResultCode:       code(0),
		ResultDesc:       "The service request is processed successfully.",
		Metadata:         map[string]any{"MpesaReceiptNumber": "NLJ7RT61SV"},
	})
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.Equal(t, course.PaymentCompleted, out.Payment.Status)
	assert.True(t, out.Payment.CallbackReceived)
	assert.NotNil(t, out.Payment.CompletedAt)
	assert.Contains(t, string(out.Payment.ReceiptMetadata), "NLJ7RT61SV")

	require.NotNil(t, out.Enrollment)
	assert.Equal(t, course.EnrollmentActive, out.Enrollment.Status)
	assert.Equal(t, uint(9), out.Enrollment.StudentID)
	require.NotNil(t, out.Enrollment.PaymentID)
	assert.Equal(t, p.ID, *out.Enrollment.PaymentID)
	require.NotNil(t, out.Payment.EnrollmentID)
	assert.Equal(t, out.Enrollment.ID, *out.Payment.EnrollmentID)

	evs := f.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, course.GatewayEventApplied, evs[0].Outcome)
	assert.Equal(t, ProviderMpesa, evs[0].Provider)
	require.NotNil(t, evs[0].PaymentID)
	assert.Equal(t, p.ID, *evs[0].PaymentID)
}

func TestHandleCallbackDuplicateIsNoOp(t *testing.T) {
	f := newFixture(t, false)
	f.processingPayment(t, 9, "ws_CO_1")
	cb := Callback{GatewayReference: "ws_CO_1", ResultCode: code(0)}
	ctx := context.Background()

	first, err := f.handler.HandleCallback(ctx, cb)
	require.NoError(t, err)

	var before course.Payment
	require.NoError(t, f.db.First(&before, first.Payment.ID).Error)

	second, err := f.handler.HandleCallback(ctx, cb)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Nil(t, second.Enrollment)

	var after course.Payment
	require.NoError(t, f.db.First(&after, first.Payment.ID).Error)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))

	var n int64
	require.NoError(t, f.db.Model(&course.Enrollment{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	evs := f.events(t)
	require.Len(t, evs, 2)
	assert.Equal(t, course.GatewayEventDuplicate, evs[1].Outcome)
	assert.Equal(t, ProviderGeneric, evs[1].Provider)
}

func TestHandleCallbackFailure(t *testing.T) {
	f := newFixture(t, false)
	f.processingPayment(t, 9, "ws_CO_2")

	out, err := f.handler.HandleCallback(context.Background(), Callback{
		GatewayReference: "ws_CO_2",
		ResultCode:       code(1032),
		ResultDesc:       "Request cancelled by user",
	})
	require.NoError(t, err)
	assert.Equal(t, course.PaymentFailed, out.Payment.Status)
	assert.Equal(t, "Request cancelled by user", out.Payment.FailureReason)
	assert.NotNil(t, out.Payment.FailedAt)
	assert.Nil(t, out.Payment.EnrollmentID)
	assert.Nil(t, out.Enrollment)

	var n int64
	require.NoError(t, f.db.Model(&course.Enrollment{}).Count(&n).Error)
	assert.Zero(t, n)

	// a late success for a failed payment changes nothing
	again, err := f.handler.HandleCallback(context.Background(), Callback{GatewayReference: "ws_CO_2", ResultCode: code(0)})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, course.PaymentFailed, again.Payment.Status)
}

func TestHandleCallbackAmountMismatchFailsPayment(t *testing.T) {
	f := newFixture(t, false)
	f.processingPayment(t, 9, "ws_CO_6")
	paid := int64(1)

	out, err := f.handler.HandleCallback(context.Background(), Callback{
		Provider:         ProviderMpesa,
		GatewayReference: "ws_CO_6",
		ResultCode:       code(0),
		Amount:           &paid,
		Metadata:         map[string]any{"Amount": 1, "MpesaReceiptNumber": "NLJ7RT61SV"},
	})
	require.NoError(t, err)
	assert.Equal(t, course.PaymentFailed, out.Payment.Status)
	assert.Equal(t, "Paid amount 1 does not match course price 2500", out.Payment.FailureReason)
	assert.Contains(t, string(out.Payment.ReceiptMetadata), "NLJ7RT61SV")
	assert.Nil(t, out.Enrollment)

	var n int64
	require.NoError(t, f.db.Model(&course.Enrollment{}).Count(&n).Error)
	assert.Zero(t, n)

	f.processingPayment(t, 10, "ws_CO_7")
	full := int64(2500)
	out, err = f.handler.HandleCallback(context.Background(), Callback{GatewayReference: "ws_CO_7", ResultCode: code(0), Amount: &full})
	require.NoError(t, err)
	assert.Equal(t, course.PaymentCompleted, out.Payment.Status)
	require.NotNil(t, out.Enrollment)
}

func TestHandleCallbackUnknownReference(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.handler.HandleCallback(context.Background(), Callback{GatewayReference: "nope", ResultCode: code(0)})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	var n int64
	require.NoError(t, f.db.Model(&course.Payment{}).Count(&n).Error)
	assert.Zero(t, n)

	evs := f.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, course.GatewayEventUnknownReference, evs[0].Outcome)
	assert.Nil(t, evs[0].PaymentID)
}

func TestHandleCallbackInvalidInput(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.handler.HandleCallback(context.Background(), Callback{GatewayReference: "ws_CO_1"})
	assert.True(t, errors.Is(err, apperror.ErrInvalidRequest))

	_, err = f.handler.HandleCallback(context.Background(), Callback{ResultCode: code(0)})
	assert.True(t, errors.Is(err, apperror.ErrInvalidRequest))

	evs := f.events(t)
	require.Len(t, evs, 2)
	assert.Equal(t, course.GatewayEventRejected, evs[0].Outcome)
}

func TestHandleCallbackRequiresApproval(t *testing.T) {
	f := newFixture(t, true)
	f.processingPayment(t, 9, "ws_CO_3")

	out, err := f.handler.HandleCallback(context.Background(), Callback{GatewayReference: "ws_CO_3", ResultCode: code(0)})
	require.NoError(t, err)
	require.NotNil(t, out.Enrollment)
	assert.Equal(t, course.EnrollmentPending, out.Enrollment.Status)
}

func TestHandleCallbackLinksExistingOpenEnrollment(t *testing.T) {
	f := newFixture(t, false)
	existing, err := f.enrollments.CreateEnrollment(context.Background(), enrollment.NewEnrollment{
		StudentID: 9,
		CourseID:  f.course.ID,
		Status:    course.EnrollmentActive,
	})
	require.NoError(t, err)
	f.processingPayment(t, 9, "ws_CO_4")

	out, err := f.handler.HandleCallback(context.Background(), Callback{GatewayReference: "ws_CO_4", ResultCode: code(0)})
	require.NoError(t, err)
	assert.Equal(t, course.PaymentCompleted, out.Payment.Status)
	require.NotNil(t, out.Enrollment)
	assert.Equal(t, existing.ID, out.Enrollment.ID)
	require.NotNil(t, out.Payment.EnrollmentID)
	assert.Equal(t, existing.ID, *out.Payment.EnrollmentID)

	var n int64
	require.NoError(t, f.db.Model(&course.Enrollment{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestHandleCallbackConcurrentReplays(t *testing.T) {
	f := newFixture(t, false)
	f.processingPayment(t, 9, "ws_CO_5")

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.handler.HandleCallback(context.Background(), Callback{GatewayReference: "ws_CO_5", ResultCode: code(0)})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if !out.Duplicate {
				applied++
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, 1, applied)

	var n int64
	require.NoError(t, f.db.Model(&course.Enrollment{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	assert.Len(t, f.events(t), workers)
}

func TestInitiate(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	p, charge, err := f.handler.Initiate(ctx, InitiateRequest{StudentID: 9, CourseID: f.course.ID, Phone: "0712345678"})
	require.NoError(t, err)
	assert.Equal(t, course.PaymentProcessing, p.Status)
	assert.Equal(t, int64(2500), p.Amount)
	assert.Equal(t, "fake", p.Provider)
	require.NotNil(t, p.GatewayReference)
	assert.Equal(t, charge.Reference, *p.GatewayReference)

	// what checkout returns to the student must not carry the reference
	body, err := json.Marshal(map[string]any{"payment": p, "charge": charge})
	require.NoError(t, err)
	assert.NotContains(t, string(body), charge.Reference)
	assert.Contains(t, string(body), "Check your phone")

	require.Len(t, f.gateway.calls, 1)
	assert.Equal(t, p.ID, f.gateway.calls[0].PaymentID)
	assert.Equal(t, "Data engineering", f.gateway.calls[0].Description)

	out, err := f.handler.HandleCallback(ctx, Callback{GatewayReference: charge.Reference, ResultCode: code(0)})
	require.NoError(t, err)
	require.NotNil(t, out.Enrollment)

	_, _, err = f.handler.Initiate(ctx, InitiateRequest{StudentID: 9, CourseID: f.course.ID, Phone: "0712345678"})
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestInitiateRejectsSecondCheckoutWhileOpen(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	req := InitiateRequest{StudentID: 9, CourseID: f.course.ID, Phone: "0712345678"}

	first, charge, err := f.handler.Initiate(ctx, req)
	require.NoError(t, err)

	_, _, err = f.handler.Initiate(ctx, req)
	assert.True(t, errors.Is(err, apperror.ErrConflict))
	assert.Len(t, f.gateway.calls, 1)

	// the index holds even when the pre-check is bypassed
	dup := course.Payment{StudentID: 9, CourseID: f.course.ID, Amount: 2500, Status: course.PaymentPending}
	assert.Error(t, f.db.Create(&dup).Error)

	_, err = f.handler.HandleCallback(ctx, Callback{GatewayReference: charge.Reference, ResultCode: code(1032), ResultDesc: "Request cancelled by user"})
	require.NoError(t, err)

	second, _, err := f.handler.Initiate(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, f.gateway.calls, 2)
}

func TestInitiateExpiresStaleOpenPayment(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	req := InitiateRequest{StudentID: 9, CourseID: f.course.ID, Phone: "0712345678"}

	stale, _, err := f.handler.Initiate(ctx, req)
	require.NoError(t, err)

	f.handler.now = func() time.Time { return time.Now().Add(OpenPaymentTTL + time.Minute) }
	fresh, _, err := f.handler.Initiate(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, stale.ID, fresh.ID)

	var expired course.Payment
	require.NoError(t, f.db.First(&expired, stale.ID).Error)
	assert.Equal(t, course.PaymentFailed, expired.Status)
	assert.Equal(t, "Payment expired without a gateway result", expired.FailureReason)
	assert.NotNil(t, expired.FailedAt)
}

func TestInitiateRejectsFreeCourse(t *testing.T) {
	f := newFixture(t, false)
	free := course.Course{Title: "Intro", Status: course.CourseStatusActive}
	require.NoError(t, f.db.Create(&free).Error)

	_, _, err := f.handler.Initiate(context.Background(), InitiateRequest{StudentID: 9, CourseID: free.ID, Phone: "0712345678"})
	assert.True(t, errors.Is(err, apperror.ErrInvalidRequest))
	assert.Empty(t, f.gateway.calls)

	_, _, err = f.handler.Initiate(context.Background(), InitiateRequest{StudentID: 9, CourseID: 999, Phone: "0712345678"})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestInitiateGatewayFailure(t *testing.T) {
	f := newFixture(t, false)
	f.gateway.err = errors.New("insufficient float")

	_, _, err := f.handler.Initiate(context.Background(), InitiateRequest{StudentID: 9, CourseID: f.course.ID, Phone: "0712345678"})
	assert.True(t, errors.Is(err, apperror.ErrUpstreamUnavailable))

	var p course.Payment
	require.NoError(t, f.db.First(&p).Error)
	assert.Equal(t, course.PaymentFailed, p.Status)
	assert.Equal(t, "insufficient float", p.FailureReason)
	assert.Nil(t, p.GatewayReference)
}

func TestInitiateWithoutGateway(t *testing.T) {
	f := newFixture(t, false)
	h := NewHandler(f.db, f.enrollments, catalog.New(f.db), nil)

	_, _, err := h.Initiate(context.Background(), InitiateRequest{StudentID: 9, CourseID: f.course.ID})
	assert.True(t, errors.Is(err, apperror.ErrUnavailable))
}
