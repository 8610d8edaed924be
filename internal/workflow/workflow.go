package workflow

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/nutriscan/internal/camera"
	"github.com/zombor/nutriscan/internal/decode"
	"github.com/zombor/nutriscan/internal/editor"
	"github.com/zombor/nutriscan/internal/nutrition"
)

var (
	// ErrSessionOpen is returned by Open while another session is active
	ErrSessionOpen = errors.New("a capture session is already open")

	// ErrNoSession is returned when no session is open
	ErrNoSession = errors.New("no capture session is open")

	// ErrNoProduct is returned when there is nothing to edit or confirm yet
	ErrNoProduct = errors.New("no product to edit")

	// ErrNoImage is returned when analysis is requested without a captured photo
	ErrNoImage = errors.New("no photo captured")

	// ErrBusy is returned while a confirmation is being emitted
	ErrBusy = errors.New("confirmation in progress")

	// ErrLookupFailed wraps lookup transport or service failures that were routed to the photo fallback
	ErrLookupFailed = errors.New("lookup failed")

	// ErrCancelled is returned by Confirm when the session was cancelled
	// while the entry was being emitted; the catalog is left untouched
	ErrCancelled = errors.New("capture session cancelled")

	// ErrAnalysisFailed wraps analysis failures; the session is seeded with defaults
	ErrAnalysisFailed = errors.New("label analysis failed")
)

// Camera is the part of camera.Manager the workflow drives
type Camera interface {
	Acquire(ctx context.Context) error
	Release()
	Frame() (image.Image, error)
	CaptureStill() (*camera.Still, error)
}

// Resolver looks a code up. A miss is nutrition.ErrNotFound and an
// exhausted quota is *nutrition.LimitReached.
type Resolver interface {
	Resolve(ctx context.Context, code nutrition.Code, userID string) (*nutrition.Product, error)
}

// Analyzer estimates nutrition from a label photo
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, contentType string, code nutrition.Code, userID string) (*nutrition.Product, error)
}

// Persister writes confirmed products into the catalog
type Persister interface {
	SaveProduct(ctx context.Context, product *nutrition.Product) error
}

// Emitter hands finalized entries to the meal log
type Emitter interface {
	Emit(ctx context.Context, entry nutrition.MealEntry) error
}

// Deps are the collaborators of a Workflow
type Deps struct {
	Camera    Camera
	Decoder   decode.Decoder
	Resolver  Resolver
	Analyzer  Analyzer
	Persister Persister
	Emitter   Emitter
}

// Option configures a Workflow
type Option func(*Workflow)

// WithObserver sets the notification sink
func WithObserver(o Observer) Option {
	return func(w *Workflow) {
		w.observer = o
	}
}

// WithUserID sets the user identifier sent for quota accounting
func WithUserID(id string) Option {
	return func(w *Workflow) {
		w.userID = id
	}
}

// WithInterval sets the frame sampling interval
func WithInterval(d time.Duration) Option {
	return func(w *Workflow) {
		w.interval = d
	}
}

// WithCallTimeout bounds every lookup and analysis call
func WithCallTimeout(d time.Duration) Option {
	return func(w *Workflow) {
		w.callTimeout = d
	}
}

// WithClock replaces time.Now for finalized entries
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		w.now = now
	}
}

// WithIDGenerator replaces the session ID generator
func WithIDGenerator(gen func() string) Option {
	return func(w *Workflow) {
		w.newID = gen
	}
}

// Session is a point-in-time view of the capture session
type Session struct {
	ID         string
	State      State
	Code       nutrition.Code
	Product    *nutrition.Product
	Image      *camera.Still
	Multiplier float64
	// Photo is true while the scanning state previews a label photo
	Photo bool
}

type session struct {
	id     string
	state  State
	code   nutrition.Code
	image  *camera.Still
	editor *editor.Editor
	photo  bool

	loop       *decode.Loop
	call       uint64
	confirming bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Workflow runs one capture session at a time. It is the only component
// that acquires or releases the camera, and it releases it on every
// transition into a state that does not capture.
type Workflow struct {
	deps        Deps
	observer    Observer
	userID      string
	interval    time.Duration
	callTimeout time.Duration
	now         func() time.Time
	newID       func() string

	mu      sync.Mutex
	session *session
	pending []func(Observer)
	calls   sync.WaitGroup
}

// New creates a Workflow
func New(deps Deps, opts ...Option) *Workflow {
	w := &Workflow{
		deps:        deps,
		observer:    NopObserver{},
		interval:    decode.DefaultInterval,
		callTimeout: 45 * time.Second,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open starts a session in the scanning state and acquires the camera.
// A device error is returned and reported once; the session stays open
// so the user can enter a code manually or cancel.
func (w *Workflow) Open(ctx context.Context) error {
	w.lock()
	defer w.unlock()

	if w.session != nil {
		return ErrSessionOpen
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     w.newID(),
		state:  StateScanning,
		ctx:    sctx,
		cancel: cancel,
	}
	w.session = s
	w.emit(func(o Observer) { o.StateChanged(s.id, StateClosed, StateScanning) })

	return w.startScanning(ctx, s, false)
}

// SubmitManualCode resolves a typed code. Codes shorter than eight
// characters are rejected without a lookup.
func (w *Workflow) SubmitManualCode(raw string) error {
	code, err := nutrition.NormalizeCode(raw)
	if err != nil {
		return err
	}

	w.lock()
	defer w.unlock()

	s := w.session
	if s == nil {
		return ErrNoSession
	}
	return w.beginResolve(s, code, EventManualCode)
}

// RequestPhoto switches an unresolved session to label-photo capture and
// re-acquires the camera
func (w *Workflow) RequestPhoto(ctx context.Context) error {
	w.lock()
	defer w.unlock()

	s := w.session
	if s == nil {
		return ErrNoSession
	}
	if s.state != StateUnresolved {
		return fmt.Errorf("%w: request_photo in state %s", ErrInvalidTransition, s.state)
	}
	if err := w.fire(s, EventRequestPhoto); err != nil {
		return err
	}
	return w.startScanning(ctx, s, true)
}

// RetakePhoto discards the captured photo and returns to the preview
func (w *Workflow) RetakePhoto(ctx context.Context) error {
	w.lock()
	defer w.unlock()

	s := w.session
	if s == nil {
		return ErrNoSession
	}
	if s.state != StatePhotoCapture {
		return fmt.Errorf("%w: retake in state %s", ErrInvalidTransition, s.state)
	}
	if s.confirming {
		return ErrBusy
	}
	if err := w.fire(s, EventRequestPhoto); err != nil {
		return err
	}
	s.image = nil
	return w.startScanning(ctx, s, true)
}

// CapturePhoto grabs a still from the preview and releases the camera
func (w *Workflow) CapturePhoto() error {
	w.lock()
	defer w.unlock()

	s := w.session
	if s == nil {
		return ErrNoSession
	}
	if s.state != StateScanning || !s.photo {
		return fmt.Errorf("%w: capture in state %s", ErrInvalidTransition, s.state)
	}

	still, err := w.deps.Camera.CaptureStill()
	if err != nil {
		return fmt.Errorf("capturing photo: %w", err)
	}
	s.image = still
	return w.fire(s, EventPhotoCaptured)
}

// Analyze sends the captured photo for nutrition estimation
func (w *Workflow) Analyze() error {
	w.lock()
	defer w.unlock()

	s := w.session
	if s == nil {
		return ErrNoSession
	}
	if s.confirming {
		return ErrBusy
	}
	if s.state == StatePhotoCapture && s.image == nil {
		return ErrNoImage
	}
	if err := w.fire(s, EventRequestAnalysis); err != nil {
		return err
	}

	s.call++
	call, still, code := s.call, s.image, s.code
	w.calls.Add(1)
	go func() {
		defer w.calls.Done()
		ctx, cancel := context.WithTimeout(s.ctx, w.callTimeout)
		defer cancel()
		product, err := w.deps.Analyzer.Analyze(ctx, still.Data, still.ContentType, code, w.userID)
		w.finishAnalyze(s, call, product, err)
	}()
	return nil
}

// Edit runs fn against the working copy of the product under the workflow lock
func (w *Workflow) Edit(fn func(e *editor.Editor) error) error {
	w.lock()
	defer w.unlock()

	s := w.session
	if s == nil {
		return ErrNoSession
	}
	if s.editor == nil || !editable(s.state) {
		return ErrNoProduct
	}
	if s.confirming {
		return ErrBusy
	}
	return fn(s.editor)
}

// Confirm emits the finalized entry, persists non-catalog products, and
// closes the session. The session stays open if emission fails. A Cancel
// during emission yields ErrCancelled and nothing is written to the catalog.
func (w *Workflow) Confirm(ctx context.Context) (nutrition.MealEntry, error) {
	w.lock()
	s := w.session
	if s == nil {
		w.unlock()
		return nutrition.MealEntry{}, ErrNoSession
	}
	if _, err := Transition(s.state, EventConfirm); err != nil {
		w.unlock()
		return nutrition.MealEntry{}, err
	}
	if s.editor == nil {
		w.unlock()
		return nutrition.MealEntry{}, ErrNoProduct
	}
	if s.confirming {
		w.unlock()
		return nutrition.MealEntry{}, ErrBusy
	}
	s.confirming = true
	entry := s.editor.Finalize(w.now())
	product := s.editor.Product()
	if product.Code == "" {
		product.Code = s.code
		entry.Code = s.code
	}
	w.unlock()

	// Cancel aborts emission and the catalog write through the session context
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	if err := w.deps.Emitter.Emit(cctx, entry); err != nil {
		w.lock()
		s.confirming = false
		live := w.session == s
		w.unlock()
		if !live {
			return nutrition.MealEntry{}, ErrCancelled
		}
		return nutrition.MealEntry{}, fmt.Errorf("emitting meal entry: %w", err)
	}

	w.lock()
	live := w.session == s
	w.unlock()
	if !live {
		slog.Info("Session cancelled during confirmation, skipping catalog write", "session", s.id)
		return entry, ErrCancelled
	}

	if product.Provenance != nutrition.ProvenanceCatalog {
		w.persist(cctx, product)
	}

	w.lock()
	defer w.unlock()
	if w.session != s {
		return entry, ErrCancelled
	}
	if err := w.fire(s, EventConfirm); err != nil {
		return entry, err
	}
	w.teardown(s)
	return entry, nil
}

// Cancel closes the session from any state, releasing the camera and
// discarding whatever is in flight. It is safe to call with no session.
func (w *Workflow) Cancel() {
	w.lock()
	defer w.unlock()

	s := w.session
	if s == nil {
		return
	}
	if err := w.fire(s, EventCancel); err != nil {
		slog.Warn("Cancel rejected", "state", s.state, "error", err)
	}
	w.teardown(s)
}

// Close cancels any open session and waits for in-flight calls to return
func (w *Workflow) Close() {
	w.Cancel()
	w.calls.Wait()
}

// Snapshot returns a copy of the current session, or a closed session
// with initial values when none is open
func (w *Workflow) Snapshot() Session {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.session
	if s == nil {
		return Session{State: StateClosed, Multiplier: 1}
	}

	snap := Session{
		ID:         s.id,
		State:      s.state,
		Code:       s.code,
		Multiplier: 1,
		Photo:      s.photo,
	}
	if s.image != nil {
		img := *s.image
		snap.Image = &img
	}
	if s.editor != nil {
		snap.Product = s.editor.Product()
		snap.Multiplier = s.editor.Multiplier()
	}
	return snap
}

// Totals returns the display totals of the working product
func (w *Workflow) Totals() (editor.Totals, error) {
	var totals editor.Totals
	err := w.Edit(func(e *editor.Editor) error {
		totals = e.Totals()
		return nil
	})
	return totals, err
}

func (w *Workflow) beginResolve(s *session, code nutrition.Code, event EventKind) error {
	if err := w.fire(s, event); err != nil {
		return err
	}
	s.code = code
	s.editor = nil
	s.image = nil

	s.call++
	call := s.call
	w.calls.Add(1)
	go func() {
		defer w.calls.Done()
		ctx, cancel := context.WithTimeout(s.ctx, w.callTimeout)
		defer cancel()
		product, err := w.deps.Resolver.Resolve(ctx, code, w.userID)
		w.finishResolve(s, call, product, err)
	}()
	return nil
}

func (w *Workflow) finishResolve(s *session, call uint64, product *nutrition.Product, err error) {
	w.lock()
	defer w.unlock()

	if !w.current(s, call, StateResolving) {
		slog.Debug("Discarding stale lookup result", "session", s.id)
		return
	}

	var limit *nutrition.LimitReached
	switch {
	case err == nil:
		if product.Code == "" {
			product.Code = s.code
		}
		s.editor = editor.New(product)
		w.fire(s, EventLookupHit)
	case errors.As(err, &limit):
		l := *limit
		w.emit(func(o Observer) { o.LimitReached(l) })
		w.fire(s, EventLookupLimit)
		w.startScanning(s.ctx, s, false)
	case errors.Is(err, nutrition.ErrNotFound):
		w.fire(s, EventLookupMiss)
	default:
		slog.Warn("Lookup failed, offering photo fallback", "code", s.code, "error", err)
		lookupErr := fmt.Errorf("%w: %v", ErrLookupFailed, err)
		w.emit(func(o Observer) { o.Error(lookupErr) })
		w.fire(s, EventLookupMiss)
	}
}

func (w *Workflow) finishAnalyze(s *session, call uint64, product *nutrition.Product, err error) {
	w.lock()
	defer w.unlock()

	if !w.current(s, call, StateAnalyzing) {
		slog.Debug("Discarding stale analysis result", "session", s.id)
		return
	}

	var limit *nutrition.LimitReached
	switch {
	case err == nil:
		if product.Code == "" {
			product.Code = s.code
		}
		s.editor = editor.New(product)
		w.fire(s, EventAnalysisSuccess)
		if product.LowConfidence() {
			confidence := *product.Confidence
			w.emit(func(o Observer) { o.LowConfidence(confidence) })
		}
	case errors.As(err, &limit):
		l := *limit
		w.emit(func(o Observer) { o.LimitReached(l) })
		w.seedDefaults(s)
		w.fire(s, EventAnalysisLimit)
	default:
		analysisErr := fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
		w.emit(func(o Observer) { o.Error(analysisErr) })
		w.seedDefaults(s)
		w.fire(s, EventAnalysisError)
	}
}

// seedDefaults gives the user an editable product when analysis could not provide one
func (w *Workflow) seedDefaults(s *session) {
	if s.editor != nil {
		return
	}
	s.editor = editor.New(&nutrition.Product{
		Code:       s.code,
		Name:       "Unknown product",
		Provenance: nutrition.ProvenanceAIEstimate,
		Confidence: nutrition.Int(0),
	})
}

func (w *Workflow) persist(ctx context.Context, product *nutrition.Product) {
	if product.Code == "" {
		slog.Info("Skipping catalog write for product without a code", "name", product.Name)
		return
	}
	if err := w.deps.Persister.SaveProduct(ctx, product); err != nil {
		slog.Warn("Failed to persist product to catalog", "code", product.Code, "error", err)
		persistErr := fmt.Errorf("saving product %s to catalog: %w", product.Code, err)
		w.lock()
		w.emit(func(o Observer) { o.Error(persistErr) })
		w.unlock()
	}
}

// startScanning acquires the camera for the scanning state and, outside
// photo mode, starts the decode loop
func (w *Workflow) startScanning(ctx context.Context, s *session, photo bool) error {
	s.photo = photo
	if err := w.deps.Camera.Acquire(ctx); err != nil {
		w.emit(func(o Observer) { o.Error(err) })
		return err
	}
	if photo {
		return nil
	}

	loop := decode.NewLoop(w.deps.Camera, w.deps.Decoder, w.interval)
	s.loop = loop
	err := loop.Start(s.ctx,
		func(code string) { w.onDecoded(s, loop, code) },
		func(err error) { w.onStreamError(s, loop, err) },
	)
	if err != nil {
		return fmt.Errorf("starting decode loop: %w", err)
	}
	return nil
}

// stopScanning stops the decode loop and releases the camera. It is idempotent.
func (w *Workflow) stopScanning(s *session) {
	if s.loop != nil {
		s.loop.Stop()
		s.loop = nil
	}
	w.deps.Camera.Release()
}

func (w *Workflow) onDecoded(s *session, loop *decode.Loop, raw string) {
	w.lock()
	defer w.unlock()

	if w.session != s || s.loop != loop || s.state != StateScanning {
		return
	}

	code, err := nutrition.NormalizeCode(raw)
	if err != nil {
		slog.Debug("Ignoring decoded symbol", "symbol", raw, "error", err)
		s.loop = nil
		w.restartLoop(s)
		return
	}
	w.beginResolve(s, code, EventCodeDecoded)
}

func (w *Workflow) restartLoop(s *session) {
	loop := decode.NewLoop(w.deps.Camera, w.deps.Decoder, w.interval)
	s.loop = loop
	if err := loop.Start(s.ctx,
		func(code string) { w.onDecoded(s, loop, code) },
		func(err error) { w.onStreamError(s, loop, err) },
	); err != nil {
		slog.Error("Failed to restart decode loop", "error", err)
	}
}

func (w *Workflow) onStreamError(s *session, loop *decode.Loop, err error) {
	w.lock()
	defer w.unlock()

	if w.session != s || s.loop != loop {
		return
	}
	w.emit(func(o Observer) { o.Error(err) })
	w.stopScanning(s)
}

// fire applies a transition and enforces the camera invariant
func (w *Workflow) fire(s *session, event EventKind) error {
	to, err := Transition(s.state, event)
	if err != nil {
		return err
	}
	from := s.state
	s.state = to
	if !HoldsCamera(to) {
		w.stopScanning(s)
	}
	id := s.id
	w.emit(func(o Observer) { o.StateChanged(id, from, to) })
	return nil
}

// teardown releases everything the session owns and forgets it
func (w *Workflow) teardown(s *session) {
	w.stopScanning(s)
	s.cancel()
	s.image = nil
	s.editor = nil
	if w.session == s {
		w.session = nil
	}
}

// current reports whether a remote result still belongs to the live session
func (w *Workflow) current(s *session, call uint64, state State) bool {
	return w.session == s && s.call == call && s.state == state
}

func editable(state State) bool {
	return state == StateResolved || state == StateConfirming || state == StatePhotoCapture
}

func (w *Workflow) lock() {
	w.mu.Lock()
}

// unlock releases the lock and then delivers queued notifications
func (w *Workflow) unlock() {
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()
	for _, fn := range pending {
		fn(w.observer)
	}
}

func (w *Workflow) emit(fn func(Observer)) {
	w.pending = append(w.pending, fn)
}
