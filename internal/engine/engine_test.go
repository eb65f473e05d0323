package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/facegate/internal/auditlog"
	"github.com/kozaktomas/facegate/internal/extractor"
	"github.com/kozaktomas/facegate/internal/identity"
	"github.com/kozaktomas/facegate/internal/matcher"
	"github.com/kozaktomas/facegate/internal/store/filestore"
)

var testRoles = []identity.Role{
	identity.RoleDoctor, identity.RolePatient,
	identity.RoleReceptionist, identity.RolePharmacist,
}

// fakeExtractor maps image bytes to canned face detections.
type fakeExtractor struct {
	faces map[string][]extractor.Face
	err   error
}

func (f *fakeExtractor) ExtractFaces(_ context.Context, image []byte) ([]extractor.Face, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.faces[string(image)], nil
}

// makeJPEG produces a small valid JPEG whose bytes differ per seed.
func makeJPEG(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{seed, uint8(x * 16), uint8(y * 16), 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

type testEnv struct {
	engine  *Engine
	extract *fakeExtractor
	audit   *auditlog.Log
	dir     string
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithSelection(t, extractor.SelectFirst)
}

func newTestEnvWithSelection(t *testing.T, selection extractor.SelectionPolicy) *testEnv {
	t.Helper()
	dir := t.TempDir()

	fs, err := filestore.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	audit, err := auditlog.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	extract := &fakeExtractor{faces: make(map[string][]extractor.Face)}

	eng := New(Options{
		Store:     fs,
		Extractor: extract,
		Selection: selection,
		Matcher:   matcher.New(0.6),
		Audit:     audit,
		Archive:   filestore.NewImageArchive(dir),
		Roles:     testRoles,
	})

	return &testEnv{engine: eng, extract: extract, audit: audit, dir: dir}
}

// addFace registers a canned detection for an image.
func (env *testEnv) addFace(img []byte, signature []float32) {
	env.extract.faces[string(img)] = []extractor.Face{
		{Index: 0, Dim: len(signature), Signature: signature, DetScore: 0.99},
	}
}

func TestEnroll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	img := makeJPEG(t, 1)
	env.addFace(img, []float32{0.1, 0.2, 0.3})

	res, err := env.engine.Enroll(ctx, "doctor", "Alice", img)
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Message)
	}
	if res.Key.Username != "alice" {
		t.Errorf("expected normalized username 'alice', got %q", res.Key.Username)
	}

	cred, err := env.engine.Info(ctx, "doctor", "alice")
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if cred.RegistrationTime.IsZero() {
		t.Error("registration time not set")
	}
	if cred.LastLoginTime != nil {
		t.Error("last login should be nil before first verification")
	}
}

func TestEnroll_AlreadyEnrolled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	img := makeJPEG(t, 1)
	env.addFace(img, []float32{0.1, 0.2, 0.3})

	if _, err := env.engine.Enroll(ctx, "doctor", "alice", img); err != nil {
		t.Fatal(err)
	}

	res, err := env.engine.Enroll(ctx, "doctor", "alice", img)
	if err != nil {
		t.Fatalf("Enroll returned internal error: %v", err)
	}
	if res.Outcome != OutcomeAlreadyEnrolled {
		t.Errorf("expected already_enrolled, got %s", res.Outcome)
	}
}

func TestEnroll_SameUsernameDifferentRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	img := makeJPEG(t, 1)
	env.addFace(img, []float32{0.1, 0.2, 0.3})

	if _, err := env.engine.Enroll(ctx, "doctor", "alice", img); err != nil {
		t.Fatal(err)
	}
	res, err := env.engine.Enroll(ctx, "patient", "alice", img)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Errorf("same username under a different role must enroll, got %s", res.Outcome)
	}
}

func TestEnroll_NoFace(t *testing.T) {
	env := newTestEnv(t)

	img := makeJPEG(t, 1) // no canned detection for this image

	res, err := env.engine.Enroll(context.Background(), "doctor", "alice", img)
	if err != nil {
		t.Fatalf("Enroll returned internal error: %v", err)
	}
	if res.Outcome != OutcomeNoFace {
		t.Errorf("expected no_face_detected, got %s", res.Outcome)
	}
}

func TestEnroll_MultipleFacesRejected(t *testing.T) {
	env := newTestEnvWithSelection(t, extractor.SelectReject)

	img := makeJPEG(t, 1)
	env.extract.faces[string(img)] = []extractor.Face{
		{Index: 0, Signature: []float32{0, 0, 0}},
		{Index: 1, Signature: []float32{1, 1, 1}},
	}

	res, err := env.engine.Enroll(context.Background(), "doctor", "alice", img)
	if err != nil {
		t.Fatalf("Enroll returned internal error: %v", err)
	}
	if res.Outcome != OutcomeMultipleFaces {
		t.Errorf("expected multiple_faces, got %s", res.Outcome)
	}
}

func TestEnroll_UnknownRole(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.engine.Enroll(context.Background(), "janitor", "alice", makeJPEG(t, 1)); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestVerify_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	img := makeJPEG(t, 1)
	env.addFace(img, []float32{0.1, 0.2, 0.3})

	if _, err := env.engine.Enroll(ctx, "doctor", "alice", img); err != nil {
		t.Fatal(err)
	}

	res, err := env.engine.Verify(ctx, "doctor", "alice", img)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Message)
	}
	if res.Distance != 0 {
		t.Errorf("expected zero distance for identical signature, got %f", res.Distance)
	}
	if res.Confidence != 1 {
		t.Errorf("expected confidence 1, got %f", res.Confidence)
	}

	cred, err := env.engine.Info(ctx, "doctor", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if cred.LastLoginTime == nil {
		t.Error("last login should be set after successful verification")
	}

	records, err := env.audit.Read(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}
	if records[0].Status != auditlog.StatusSuccess {
		t.Errorf("expected success audit record, got %s", records[0].Status)
	}
}

func TestVerify_NoMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	enrollImg := makeJPEG(t, 1)
	probeImg := makeJPEG(t, 2)
	env.addFace(enrollImg, []float32{0, 0, 0})
	env.addFace(probeImg, []float32{1, 1, 1}) // distance sqrt(3) > 0.6

	if _, err := env.engine.Enroll(ctx, "doctor", "alice", enrollImg); err != nil {
		t.Fatal(err)
	}

	res, err := env.engine.Verify(ctx, "doctor", "alice", probeImg)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if res.Outcome != OutcomeNoMatch {
		t.Fatalf("expected no_match, got %s", res.Outcome)
	}
	if res.Distance < 0.6 {
		t.Errorf("expected distance >= 0.6, got %f", res.Distance)
	}

	// Last login must be unchanged by a failed attempt.
	cred, err := env.engine.Info(ctx, "doctor", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if cred.LastLoginTime != nil {
		t.Error("failed verification must not update last login")
	}

	records, err := env.audit.Read(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Status != auditlog.StatusFailed {
		t.Errorf("expected one failed audit record, got %+v", records)
	}
}

func TestVerify_NotEnrolled(t *testing.T) {
	env := newTestEnv(t)

	img := makeJPEG(t, 1)
	env.addFace(img, []float32{0.1, 0.2, 0.3})

	res, err := env.engine.Verify(context.Background(), "patient", "bob", img)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if res.Outcome != OutcomeNotEnrolled {
		t.Fatalf("expected not_enrolled, got %s", res.Outcome)
	}

	records, err := env.audit.Read(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}
	if records[0].Error != "identity not enrolled" {
		t.Errorf("unexpected audit error %q", records[0].Error)
	}
}

func TestVerify_NoFace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	enrollImg := makeJPEG(t, 1)
	env.addFace(enrollImg, []float32{0.1, 0.2, 0.3})
	if _, err := env.engine.Enroll(ctx, "doctor", "alice", enrollImg); err != nil {
		t.Fatal(err)
	}

	blankImg := makeJPEG(t, 9) // no detection registered

	res, err := env.engine.Verify(ctx, "doctor", "alice", blankImg)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if res.Outcome != OutcomeNoFace {
		t.Fatalf("expected no_face_detected, got %s", res.Outcome)
	}

	records, err := env.audit.Read(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Status != auditlog.StatusFailed {
		t.Errorf("expected one failed audit record, got %+v", records)
	}
}

func TestVerify_MultipleFacesRejected(t *testing.T) {
	env := newTestEnvWithSelection(t, extractor.SelectReject)
	ctx := context.Background()

	enrollImg := makeJPEG(t, 1)
	env.addFace(enrollImg, []float32{0, 0, 0})
	if _, err := env.engine.Enroll(ctx, "doctor", "alice", enrollImg); err != nil {
		t.Fatal(err)
	}

	crowdImg := makeJPEG(t, 2)
	env.extract.faces[string(crowdImg)] = []extractor.Face{
		{Index: 0, Signature: []float32{0, 0, 0}},
		{Index: 1, Signature: []float32{1, 1, 1}},
	}

	res, err := env.engine.Verify(ctx, "doctor", "alice", crowdImg)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if res.Outcome != OutcomeMultipleFaces {
		t.Fatalf("expected multiple_faces, got %s", res.Outcome)
	}

	// The audit record must distinguish a multi-face rejection from a
	// no-face failure.
	records, err := env.audit.Read(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Status != auditlog.StatusFailed {
		t.Fatalf("expected one failed audit record, got %+v", records)
	}
	if !strings.Contains(records[0].Error, "multiple faces") {
		t.Errorf("audit error should name the multi-face rejection, got %q", records[0].Error)
	}
}

func TestVerify_ExtractionError(t *testing.T) {
	env := newTestEnv(t)
	env.extract.err = errors.New("service unavailable")

	_, err := env.engine.Verify(context.Background(), "doctor", "alice", makeJPEG(t, 1))
	if err == nil {
		t.Fatal("expected error when extraction service fails")
	}
}

func TestVerify_BoundaryDistance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	enrollImg := makeJPEG(t, 1)
	probeImg := makeJPEG(t, 2)
	env.addFace(enrollImg, []float32{0, 0, 0})
	// Distance is exactly 0.6, which must be rejected.
	env.addFace(probeImg, []float32{0.6, 0, 0})

	if _, err := env.engine.Enroll(ctx, "doctor", "alice", enrollImg); err != nil {
		t.Fatal(err)
	}

	res, err := env.engine.Verify(ctx, "doctor", "alice", probeImg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeNoMatch {
		t.Errorf("distance exactly at threshold must be no_match, got %s", res.Outcome)
	}
}

func TestIdentify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	aliceImg := makeJPEG(t, 1)
	bobImg := makeJPEG(t, 2)
	probeImg := makeJPEG(t, 3)
	env.addFace(aliceImg, []float32{0, 0, 0})
	env.addFace(bobImg, []float32{5, 5, 5})
	env.addFace(probeImg, []float32{0.1, 0, 0})

	if _, err := env.engine.Enroll(ctx, "doctor", "alice", aliceImg); err != nil {
		t.Fatal(err)
	}
	if _, err := env.engine.Enroll(ctx, "patient", "bob", bobImg); err != nil {
		t.Fatal(err)
	}

	res, err := env.engine.Identify(ctx, probeImg)
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Message)
	}
	if res.Key.Username != "alice" {
		t.Errorf("expected alice, got %s", res.Key)
	}

	// A matched identification leaves a success audit record for the
	// identified key.
	records, err := env.audit.Read(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}
	if records[0].Status != auditlog.StatusSuccess || records[0].Username != "alice" {
		t.Errorf("unexpected audit record %+v", records[0])
	}
}

func TestIdentify_NoMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	aliceImg := makeJPEG(t, 1)
	probeImg := makeJPEG(t, 2)
	env.addFace(aliceImg, []float32{0, 0, 0})
	env.addFace(probeImg, []float32{3, 3, 3})

	if _, err := env.engine.Enroll(ctx, "doctor", "alice", aliceImg); err != nil {
		t.Fatal(err)
	}

	res, err := env.engine.Identify(ctx, probeImg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeNoMatch {
		t.Errorf("expected no_match, got %s", res.Outcome)
	}

	// An unmatched probe has no identity to attribute, so nothing is
	// written to the audit trail.
	records, err := env.audit.Read(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected no audit records for unmatched probe, got %+v", records)
	}
}

func TestIdentify_EmptyGallery(t *testing.T) {
	env := newTestEnv(t)

	img := makeJPEG(t, 1)
	env.addFace(img, []float32{0, 0, 0})

	res, err := env.engine.Identify(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeNoMatch {
		t.Errorf("expected no_match on empty gallery, got %s", res.Outcome)
	}
}

func TestLoadGallery(t *testing.T) {
	dir := t.TempDir()
	fs, err := filestore.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	audit, err := auditlog.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	extract := &fakeExtractor{faces: make(map[string][]extractor.Face)}

	newEngine := func() *Engine {
		return New(Options{
			Store:     fs,
			Extractor: extract,
			Matcher:   matcher.New(0.6),
			Audit:     audit,
			Roles:     testRoles,
		})
	}

	ctx := context.Background()
	img := makeJPEG(t, 1)
	extract.faces[string(img)] = []extractor.Face{{Signature: []float32{0, 0, 0}}}

	if _, err := newEngine().Enroll(ctx, "doctor", "alice", img); err != nil {
		t.Fatal(err)
	}

	// A fresh engine over the same store sees the gallery after loading.
	eng := newEngine()
	if err := eng.LoadGallery(ctx); err != nil {
		t.Fatalf("LoadGallery failed: %v", err)
	}

	res, err := eng.Identify(ctx, img)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeSuccess || res.Key.Username != "alice" {
		t.Errorf("expected to identify alice, got %s (%s)", res.Outcome, res.Key)
	}
}

// Full enrollment and verification scenario across two people.
func TestScenario_EnrollVerifyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	imgA := makeJPEG(t, 1)
	imgB := makeJPEG(t, 2)
	env.addFace(imgA, []float32{0.1, 0.2, 0.3})
	env.addFace(imgB, []float32{0.9, 0.8, 0.7})

	res, err := env.engine.Enroll(ctx, "doctor", "alice", imgA)
	if err != nil || res.Outcome != OutcomeSuccess {
		t.Fatalf("enroll: %v %s", err, res.Outcome)
	}

	// Same person authenticates.
	res, err = env.engine.Verify(ctx, "doctor", "alice", imgA)
	if err != nil || res.Outcome != OutcomeSuccess {
		t.Fatalf("verify self: %v %s", err, res.Outcome)
	}
	if res.Distance != 0 {
		t.Errorf("expected zero distance, got %f", res.Distance)
	}

	// A different person tries alice's credential.
	res, err = env.engine.Verify(ctx, "doctor", "alice", imgB)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeNoMatch {
		t.Fatalf("expected no_match for different person, got %s", res.Outcome)
	}

	// Exactly one audit record per attempt.
	records, err := env.audit.Read(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(records))
	}
}
