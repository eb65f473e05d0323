// Package engine implements enrollment, verification and identification
// on top of the credential store, the extraction client and the matcher.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kozaktomas/facegate/internal/auditlog"
	"github.com/kozaktomas/facegate/internal/extractor"
	"github.com/kozaktomas/facegate/internal/identity"
	"github.com/kozaktomas/facegate/internal/index"
	"github.com/kozaktomas/facegate/internal/matcher"
	"github.com/kozaktomas/facegate/internal/store"
)

// ErrInvalidImage marks uploads that do not decode as an image.
var ErrInvalidImage = errors.New("invalid image")

// Outcome classifies the result of an enrollment or authentication attempt.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeNoMatch         Outcome = "no_match"
	OutcomeNoFace          Outcome = "no_face_detected"
	OutcomeMultipleFaces   Outcome = "multiple_faces"
	OutcomeAlreadyEnrolled Outcome = "already_enrolled"
	OutcomeNotEnrolled     Outcome = "not_enrolled"
)

// faceOutcome maps extraction selection errors to their outcome kind.
func faceOutcome(err error) (Outcome, bool) {
	switch {
	case errors.Is(err, extractor.ErrNoFace):
		return OutcomeNoFace, true
	case errors.Is(err, extractor.ErrMultipleFaces):
		return OutcomeMultipleFaces, true
	}
	return "", false
}

// Result is the caller-facing outcome of one request. Distance and
// Confidence are meaningful only when the matcher ran; Confidence is
// display-only and never part of the decision.
type Result struct {
	Outcome    Outcome      `json:"outcome"`
	Key        identity.Key `json:"-"`
	Distance   float64      `json:"distance,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Message    string       `json:"message"`
}

// FaceExtractor computes face signatures from an image.
type FaceExtractor interface {
	ExtractFaces(ctx context.Context, image []byte) ([]extractor.Face, error)
}

// ImageArchiver persists authentication attempt images.
type ImageArchiver interface {
	Save(key identity.Key, success bool, at time.Time, image []byte) (string, error)
}

// Engine wires the store, extractor, matcher, audit log and the
// identification index together. All state it needs is injected at
// construction; there is no process-global state.
type Engine struct {
	store     store.Store
	extract   FaceExtractor
	selection extractor.SelectionPolicy
	match     *matcher.Matcher
	audit     *auditlog.Log
	archive   ImageArchiver
	gallery   *index.Index
	roles     []identity.Role
	dim       int

	now func() time.Time
}

// Options configures an Engine.
type Options struct {
	Store     store.Store
	Extractor FaceExtractor
	Selection extractor.SelectionPolicy
	Matcher   *matcher.Matcher
	Audit     *auditlog.Log
	Archive   ImageArchiver
	Roles     []identity.Role
	// Dim is the expected signature dimensionality; zero disables the check.
	Dim int
}

func New(opts Options) *Engine {
	e := &Engine{
		store:     opts.Store,
		extract:   opts.Extractor,
		selection: opts.Selection,
		match:     opts.Matcher,
		audit:     opts.Audit,
		archive:   opts.Archive,
		gallery:   index.New(),
		roles:     opts.Roles,
		dim:       opts.Dim,
		now:       time.Now,
	}
	if e.selection == "" {
		e.selection = extractor.SelectFirst
	}
	return e
}

// LoadGallery fills the identification index from the store.
func (e *Engine) LoadGallery(ctx context.Context) error {
	creds, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load gallery: %w", err)
	}
	e.gallery.Build(creds)
	return nil
}

// Roles returns the enrollable role set.
func (e *Engine) Roles() []identity.Role {
	return e.roles
}

// extractSignature runs the extraction service and the selection policy
// on a prepared image.
func (e *Engine) extractSignature(ctx context.Context, image []byte) ([]float32, error) {
	faces, err := e.extract.ExtractFaces(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	face, err := e.selection.Select(faces)
	if err != nil {
		return nil, err
	}
	if e.dim > 0 && len(face.Signature) != e.dim {
		return nil, fmt.Errorf("%w: got %d, expected %d",
			matcher.ErrDimensionMismatch, len(face.Signature), e.dim)
	}
	return face.Signature, nil
}

// Enroll registers a new credential for (role, username). An existing
// record is never overwritten.
func (e *Engine) Enroll(ctx context.Context, role, username string, image []byte) (Result, error) {
	key, err := identity.NewKey(role, username, e.roles)
	if err != nil {
		return Result{}, err
	}

	prepared, err := extractor.PrepareImage(image)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	signature, err := e.extractSignature(ctx, prepared)
	if err != nil {
		if outcome, ok := faceOutcome(err); ok {
			return Result{
				Outcome: outcome,
				Key:     key,
				Message: err.Error(),
			}, nil
		}
		return Result{}, err
	}

	cred := store.Credential{
		Key:              key,
		Signature:        signature,
		RegistrationTime: e.now().UTC(),
	}
	if err := e.store.Enroll(ctx, cred, prepared); err != nil {
		if errors.Is(err, store.ErrAlreadyEnrolled) {
			return Result{
				Outcome: OutcomeAlreadyEnrolled,
				Key:     key,
				Message: fmt.Sprintf("%s is already enrolled", key),
			}, nil
		}
		return Result{}, fmt.Errorf("failed to store credential: %w", err)
	}

	e.gallery.Add(cred)

	return Result{
		Outcome: OutcomeSuccess,
		Key:     key,
		Message: fmt.Sprintf("enrolled %s", key),
	}, nil
}

// Verify authenticates a probe image against the credential enrolled
// for (role, username). Every attempt produces exactly one audit
// record. Image archiving and the last-login update are best effort and
// never change the decision.
func (e *Engine) Verify(ctx context.Context, role, username string, image []byte) (Result, error) {
	key, err := identity.NewKey(role, username, e.roles)
	if err != nil {
		return Result{}, err
	}

	at := e.now().UTC()

	prepared, err := extractor.PrepareImage(image)
	if err != nil {
		e.auditFailure(at, key, 0, fmt.Sprintf("invalid image: %v", err))
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	// Face extraction runs before any store lookup; an image without a
	// detectable face never reaches the store or the matcher.
	signature, err := e.extractSignature(ctx, prepared)
	if err != nil {
		e.auditFailure(at, key, 0, err.Error())
		if outcome, ok := faceOutcome(err); ok {
			return Result{
				Outcome: outcome,
				Key:     key,
				Message: err.Error(),
			}, nil
		}
		return Result{}, err
	}

	cred, err := e.store.Lookup(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.auditFailure(at, key, 0, "identity not enrolled")
			return Result{
				Outcome: OutcomeNotEnrolled,
				Key:     key,
				Message: fmt.Sprintf("%s is not enrolled", key),
			}, nil
		}
		e.auditFailure(at, key, 0, err.Error())
		return Result{}, fmt.Errorf("failed to load credential: %w", err)
	}

	ok, distance, err := e.match.Match(signature, cred.Signature)
	if err != nil {
		e.auditFailure(at, key, 0, err.Error())
		return Result{}, err
	}

	e.archiveAttempt(key, ok, at, prepared)

	if !ok {
		e.auditRecord(at, key, auditlog.StatusFailed, distance, "")
		return Result{
			Outcome:    OutcomeNoMatch,
			Key:        key,
			Distance:   distance,
			Confidence: matcher.Confidence(distance),
			Message:    fmt.Sprintf("face does not match credential for %s", key),
		}, nil
	}

	if err := e.store.RecordLogin(ctx, key, at); err != nil {
		log.Printf("failed to record login for %s: %v", key, err)
	}

	e.auditRecord(at, key, auditlog.StatusSuccess, distance, "")
	return Result{
		Outcome:    OutcomeSuccess,
		Key:        key,
		Distance:   distance,
		Confidence: matcher.Confidence(distance),
		Message:    fmt.Sprintf("authenticated %s", key),
	}, nil
}

// Identify searches the whole gallery for the closest enrolled
// credential to the probe image. The threshold decision is the same as
// for verification. A matched identification is audited as a success
// for the identified key; unmatched probes carry no identity, so they
// leave no audit line.
func (e *Engine) Identify(ctx context.Context, image []byte) (Result, error) {
	at := e.now().UTC()

	prepared, err := extractor.PrepareImage(image)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	signature, err := e.extractSignature(ctx, prepared)
	if err != nil {
		if outcome, ok := faceOutcome(err); ok {
			return Result{Outcome: outcome, Message: err.Error()}, nil
		}
		return Result{}, err
	}

	candidates, err := e.gallery.Search(signature, 1)
	if err != nil {
		if errors.Is(err, index.ErrEmpty) {
			return Result{
				Outcome: OutcomeNoMatch,
				Message: "no credentials enrolled",
			}, nil
		}
		return Result{}, err
	}

	best := candidates[0]
	if !e.match.Decide(best.Distance) {
		return Result{
			Outcome:    OutcomeNoMatch,
			Distance:   best.Distance,
			Confidence: matcher.Confidence(best.Distance),
			Message:    "no enrolled credential matches",
		}, nil
	}

	e.auditRecord(at, best.Key, auditlog.StatusSuccess, best.Distance, "")
	return Result{
		Outcome:    OutcomeSuccess,
		Key:        best.Key,
		Distance:   best.Distance,
		Confidence: matcher.Confidence(best.Distance),
		Message:    fmt.Sprintf("identified %s", best.Key),
	}, nil
}

// Info returns the stored credential metadata for (role, username).
func (e *Engine) Info(ctx context.Context, role, username string) (*store.Credential, error) {
	key, err := identity.NewKey(role, username, e.roles)
	if err != nil {
		return nil, err
	}
	return e.store.Lookup(ctx, key)
}

// List returns all enrolled credentials.
func (e *Engine) List(ctx context.Context) ([]store.Credential, error) {
	return e.store.List(ctx)
}

// Audit returns the audit records for the given UTC date.
func (e *Engine) Audit(day time.Time) ([]auditlog.Record, error) {
	return e.audit.Read(day)
}

func (e *Engine) archiveAttempt(key identity.Key, success bool, at time.Time, image []byte) {
	if e.archive == nil {
		return
	}
	if _, err := e.archive.Save(key, success, at, image); err != nil {
		log.Printf("failed to archive attempt image for %s: %v", key, err)
	}
}

func (e *Engine) auditRecord(at time.Time, key identity.Key, status string, distance float64, errMsg string) {
	rec := auditlog.Record{
		Username: key.Username,
		Role:     string(key.Role),
		Status:   status,
		Distance: distance,
		Error:    errMsg,
	}
	if err := e.audit.Append(at, rec); err != nil {
		log.Printf("failed to append audit record for %s: %v", key, err)
	}
}

func (e *Engine) auditFailure(at time.Time, key identity.Key, distance float64, errMsg string) {
	e.auditRecord(at, key, auditlog.StatusFailed, distance, errMsg)
}
