package attendance

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/verify"
)

type fakeUsers struct {
	users map[uuid.UUID]*models.User
	err   error
}

func (f *fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

type fakeSigner struct{ keys []string }

func (f *fakeSigner) PresignedGetURL(_ context.Context, key string) (string, error) {
	f.keys = append(f.keys, key)
	return "http://minio/hr-files/" + key + "?X-Amz-Signature=abc", nil
}

type fakeVerifier struct {
	results []*verify.Result
	errs    []error
	calls   int
	refs    []verify.Source
}

func (f *fakeVerifier) Verify(_ context.Context, _ []byte, ref verify.Source) (*verify.Result, error) {
	i := f.calls
	f.calls++
	f.refs = append(f.refs, ref)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	return f.results[len(f.results)-1], nil
}

type fakeRecorder struct {
	records []*models.AttendanceRecord
	err     error
}

func (f *fakeRecorder) RecordAttendance(_ context.Context, rec *models.AttendanceRecord) error {
	f.records = append(f.records, rec)
	return f.err
}

type fakePublisher struct {
	events []models.AttendanceEvent
	err    error
}

func (f *fakePublisher) PublishAttendance(_ context.Context, ev models.AttendanceEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func strPtr(s string) *string { return &s }

var fastRetry = RetryPolicy{Retries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}

func newUser(picture *string) (*fakeUsers, uuid.UUID) {
	id := uuid.New()
	return &fakeUsers{users: map[uuid.UUID]*models.User{
		id: {ID: id, Name: "Asha", Email: "asha@example.com", ProfilePicture: picture},
	}}, id
}

func TestCheckInRecordsAndPublishes(t *testing.T) {
	users, id := newUser(strPtr("profile-pictures/u/1.jpg"))
	signer := &fakeSigner{}
	v := &fakeVerifier{results: []*verify.Result{verify.Decide(0.25)}}
	rec := &fakeRecorder{}
	pub := &fakePublisher{}

	svc := NewService(users, signer, v, rec, pub, fastRetry, nil)
	result, err := svc.CheckIn(context.Background(), id, []byte("capture"))
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if !result.Matched {
		t.Fatal("expected match")
	}
	if len(signer.keys) != 1 || signer.keys[0] != "profile-pictures/u/1.jpg" {
		t.Fatalf("signed keys = %v", signer.keys)
	}
	if !v.refs[0].IsURL() {
		t.Fatal("reference should be a URL source")
	}
	if len(rec.records) != 1 || rec.records[0].UserID != id || !rec.records[0].Matched {
		t.Fatalf("records = %+v", rec.records)
	}
	if len(pub.events) != 1 || pub.events[0].RecordID != rec.records[0].ID || pub.events[0].UserName != "Asha" {
		t.Fatalf("events = %+v", pub.events)
	}
}

func TestCheckInUserErrors(t *testing.T) {
	t.Run("missing user", func(t *testing.T) {
		svc := NewService(&fakeUsers{}, &fakeSigner{}, &fakeVerifier{}, nil, nil, fastRetry, nil)
		_, err := svc.CheckIn(context.Background(), uuid.New(), []byte("x"))
		if !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("no profile picture", func(t *testing.T) {
		users, id := newUser(nil)
		v := &fakeVerifier{}
		svc := NewService(users, &fakeSigner{}, v, nil, nil, fastRetry, nil)
		_, err := svc.CheckIn(context.Background(), id, []byte("x"))
		if !errors.Is(err, ErrNoProfilePicture) {
			t.Fatalf("got %v", err)
		}
		if v.calls != 0 {
			t.Fatal("verifier should not run")
		}
	})

	t.Run("empty profile picture", func(t *testing.T) {
		users, id := newUser(strPtr(""))
		svc := NewService(users, &fakeSigner{}, &fakeVerifier{}, nil, nil, fastRetry, nil)
		if _, err := svc.CheckIn(context.Background(), id, []byte("x")); !errors.Is(err, ErrNoProfilePicture) {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		svc := NewService(&fakeUsers{err: errors.New("db down")}, &fakeSigner{}, &fakeVerifier{}, nil, nil, fastRetry, nil)
		_, err := svc.CheckIn(context.Background(), uuid.New(), []byte("x"))
		if err == nil || errors.Is(err, ErrUserNotFound) {
			t.Fatalf("got %v", err)
		}
	})
}

func TestCheckInRetriesTransientFetch(t *testing.T) {
	users, id := newUser(strPtr("k"))
	v := &fakeVerifier{
		errs: []error{
			&verify.RemoteFetchError{StatusCode: http.StatusServiceUnavailable},
			&verify.RemoteFetchError{Err: context.DeadlineExceeded},
		},
		results: []*verify.Result{verify.Decide(0.8)},
	}
	rec := &fakeRecorder{}

	result, err := NewService(users, &fakeSigner{}, v, rec, nil, fastRetry, nil).CheckIn(context.Background(), id, []byte("x"))
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if result.Matched || v.calls != 3 {
		t.Fatalf("matched=%v calls=%d", result.Matched, v.calls)
	}
	if len(rec.records) != 1 {
		t.Fatalf("expected one record, got %d", len(rec.records))
	}
}

func TestCheckInDoesNotRetryPermanentFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"forbidden", &verify.RemoteFetchError{StatusCode: http.StatusForbidden}},
		{"not found", &verify.RemoteFetchError{StatusCode: http.StatusNotFound}},
		{"decode", &verify.ImageDecodeError{Role: verify.RoleCapture, Err: errors.New("bad")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, id := newUser(strPtr("k"))
			v := &fakeVerifier{errs: []error{tt.err}, results: []*verify.Result{verify.Decide(0.1)}}
			rec := &fakeRecorder{}
			_, err := NewService(users, &fakeSigner{}, v, rec, nil, fastRetry, nil).CheckIn(context.Background(), id, []byte("x"))
			if !errors.Is(err, tt.err) {
				t.Fatalf("got %v", err)
			}
			if v.calls != 1 {
				t.Fatalf("calls = %d", v.calls)
			}
			if len(rec.records) != 0 {
				t.Fatal("failed verification must not be recorded")
			}
		})
	}
}

func TestCheckInGivesUpAfterRetries(t *testing.T) {
	users, id := newUser(strPtr("k"))
	transient := &verify.RemoteFetchError{StatusCode: http.StatusBadGateway}
	v := &fakeVerifier{errs: []error{transient, transient, transient, transient}}

	_, err := NewService(users, &fakeSigner{}, v, nil, nil, fastRetry, nil).CheckIn(context.Background(), id, []byte("x"))
	var rfe *verify.RemoteFetchError
	if !errors.As(err, &rfe) {
		t.Fatalf("got %v", err)
	}
	if v.calls != fastRetry.Retries+1 {
		t.Fatalf("calls = %d", v.calls)
	}
}

func TestCheckInSideEffectFailuresKeepResult(t *testing.T) {
	users, id := newUser(strPtr("k"))
	v := &fakeVerifier{results: []*verify.Result{verify.Decide(0.3)}}
	rec := &fakeRecorder{err: errors.New("insert failed")}
	pub := &fakePublisher{err: errors.New("nats down")}

	result, err := NewService(users, &fakeSigner{}, v, rec, pub, fastRetry, nil).CheckIn(context.Background(), id, []byte("x"))
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if !result.Matched {
		t.Fatal("result should survive side-effect failures")
	}
}
