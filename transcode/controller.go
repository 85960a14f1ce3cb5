// Package transcode runs the pick/drop -> validate -> encode -> deliver
// pipeline. One job encodes at a time; the admission gate either rejects or
// queues the others.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"vidcrush/config"
	"vidcrush/delivery"
	"vidcrush/engine"
	"vidcrush/history"
	"vidcrush/intake"
	"vidcrush/logger"
	"vidcrush/metrics"
	"vidcrush/quality"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// OutputContentType is the MIME type of every compressed artifact.
const OutputContentType = "video/mp4"

var stagingExt = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// Options configures a Controller. Engine is required.
type Options struct {
	Engine    engine.Engine
	Quality   *quality.Selector
	Policy    intake.Policy
	Admission string         // config.AdmissionReject (default) or config.AdmissionQueue
	History   *history.Store // optional
	Client    *http.Client   // for callbacks; http.DefaultClient when nil
}

// Request carries the per-job inputs that do not come from the file itself.
type Request struct {
	JobID     string // optional UUID chosen by the client; generated when empty
	Deliverer delivery.Deliverer
	Sink      string // name of the delivery target, for metrics

	// CallbackURL, when set, receives the result as JSON after the job ends.
	CallbackURL     string
	CallbackHeaders map[string]string
}

// Result is the outcome of one job. Err is nil exactly when Status is success.
type Result struct {
	JobID      string
	Status     history.Status
	Source     string
	Output     string
	Tier       quality.Tier
	CRF        string
	InputSize  int64
	OutputSize int64
	Receipt    delivery.Receipt
	Err        error
	Started    time.Time
	Finished   time.Time
}

// Record converts the result for the history store.
func (r Result) Record() history.Record {
	rec := history.Record{
		JobID:      r.JobID,
		Status:     r.Status,
		Source:     r.Source,
		Output:     r.Output,
		Tier:       string(r.Tier),
		CRF:        r.CRF,
		InputSize:  r.InputSize,
		OutputSize: r.OutputSize,
		Sink:       r.Receipt.Sink,
		Location:   r.Receipt.Location,
		Started:    r.Started,
		Finished:   r.Finished,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// Controller owns the engine handle and the state of the current job.
type Controller struct {
	engine  engine.Engine
	quality *quality.Selector
	policy  intake.Policy
	queue   bool
	gate    *semaphore.Weighted
	history *history.Store
	client  *http.Client
	wg      sync.WaitGroup

	mu       sync.RWMutex
	loading  bool
	source   *intake.SourceVideo
	states   map[string]JobState
	active   map[string]context.CancelFunc
	finished []string
}

func New(opts Options) *Controller {
	sel := opts.Quality
	if sel == nil {
		sel = quality.NewSelector()
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Controller{
		engine:  opts.Engine,
		quality: sel,
		policy:  opts.Policy,
		queue:   opts.Admission == config.AdmissionQueue,
		gate:    semaphore.NewWeighted(1),
		history: opts.History,
		client:  client,
		states:  make(map[string]JobState),
		active:  make(map[string]context.CancelFunc),
	}
}

// Start loads the engine. A failure here is final for the process.
func (c *Controller) Start(ctx context.Context) error {
	err := c.engine.Load(ctx)
	if err != nil {
		metrics.EngineReady.Set(0)
		return err
	}
	metrics.EngineReady.Set(1)
	return nil
}

func (c *Controller) Quality() *quality.Selector { return c.quality }

func (c *Controller) EngineState() engine.State { return c.engine.State() }

// Loading reports whether a job is between admission and delivery.
func (c *Controller) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Source returns the most recently accepted input.
func (c *Controller) Source() (intake.SourceVideo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.source == nil {
		return intake.SourceVideo{}, false
	}
	return *c.source, true
}

// Pick handles an explicit file selection: the first file is the candidate.
func (c *Controller) Pick(ctx context.Context, req Request, files []intake.Candidate) (Result, error) {
	if len(files) == 0 {
		return Result{}, intake.ErrNoFile
	}
	cand := intake.ResolveType(files[0])
	if err := c.policy.ValidatePick(cand); err != nil {
		metrics.JobsRejected.WithLabelValues("validation").Inc()
		logger.Warnf("Pick rejected: %v", err)
		return Result{}, err
	}
	return c.Compress(ctx, req, intake.Accept(cand))
}

// Drop handles a drag-and-drop: the first video-typed entry is the candidate.
// items takes precedence over files when it is non-nil.
func (c *Controller) Drop(ctx context.Context, req Request, items []intake.Item, files []intake.Candidate) (Result, error) {
	cand, ok := intake.SelectDropped(items, files)
	if !ok {
		metrics.JobsRejected.WithLabelValues("validation").Inc()
		return Result{}, &intake.ValidationError{
			Reason:  "no video file in drop",
			Message: intake.InvalidInputMessage,
		}
	}
	if err := c.policy.Validate(cand); err != nil {
		metrics.JobsRejected.WithLabelValues("validation").Inc()
		logger.Warnf("Drop rejected: %v", err)
		return Result{}, err
	}
	return c.Compress(ctx, req, intake.Accept(cand))
}

// Compress runs one job for an accepted source. The loading flag is set for
// the duration of the job and cleared on every exit path.
func (c *Controller) Compress(ctx context.Context, req Request, src intake.SourceVideo) (Result, error) {
	if req.Deliverer == nil {
		return Result{}, ErrNoDeliverer
	}
	id, err := jobID(req.JobID)
	if err != nil {
		return Result{}, err
	}

	if err := c.engine.Load(ctx); err != nil {
		metrics.JobsRejected.WithLabelValues("engine").Inc()
		return Result{}, err
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.register(id, cancel); err != nil {
		return Result{}, err
	}
	queued := time.Now()
	if err := c.admit(jobCtx); err != nil {
		if errors.Is(err, ErrBusy) {
			c.forget(id)
			metrics.JobsRejected.WithLabelValues("busy").Inc()
			return Result{}, err
		}
		// Cancelled while waiting in the queue.
		tier := c.quality.Get()
		res := Result{
			JobID:     id,
			Status:    history.StatusFailure,
			Source:    src.Name,
			Tier:      tier,
			CRF:       quality.CRF(tier),
			InputSize: src.Size,
			Err:       fmt.Errorf("queued: %w", err),
			Started:   queued,
			Finished:  time.Now(),
		}
		c.finish(jobCtx, res)
		c.notify(req, res)
		return res, res.Err
	}
	defer c.gate.Release(1)

	c.enter(id, src)
	defer c.leave()

	res := c.run(jobCtx, id, src, req)
	c.finish(jobCtx, res)
	c.notify(req, res)
	return res, res.Err
}

// notify posts the result to the request's callback URL, if any.
func (c *Controller) notify(req Request, res Result) {
	if req.CallbackURL == "" {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := sendCallback(context.Background(), c.client, req, res); err != nil {
			logger.Errorf("Failed to send callback for job %s: %v", res.JobID, err)
		}
	}()
}

// Wait blocks until outstanding callbacks have been sent.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func jobID(requested string) (string, error) {
	if requested == "" {
		return uuid.NewString(), nil
	}
	parsed, err := uuid.Parse(requested)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobID, requested)
	}
	return parsed.String(), nil
}

func (c *Controller) admit(ctx context.Context) error {
	if c.queue {
		return c.gate.Acquire(ctx, 1)
	}
	if !c.gate.TryAcquire(1) {
		return ErrBusy
	}
	return nil
}

func (c *Controller) enter(id string, src intake.SourceVideo) {
	c.mu.Lock()
	c.loading = true
	c.source = &src
	c.mu.Unlock()
	c.setState(id, JobStateProcessing)
	metrics.JobsInFlight.Set(1)
}

func (c *Controller) leave() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
	metrics.JobsInFlight.Set(0)
}

// stagingNames returns workspace names unique to the job.
func stagingNames(id, original string) (string, string) {
	ext := strings.ToLower(filepath.Ext(original))
	if !stagingExt.MatchString(ext) {
		ext = ".bin"
	}
	return id + "-in" + ext, id + "-out.mp4"
}

func (c *Controller) run(ctx context.Context, id string, src intake.SourceVideo, req Request) Result {
	tier := c.quality.Get()
	res := Result{
		JobID:     id,
		Source:    src.Name,
		Tier:      tier,
		CRF:       quality.CRF(tier),
		InputSize: src.Size,
		Started:   time.Now(),
		Status:    history.StatusFailure,
	}
	fail := func(step string, err error) Result {
		res.Err = fmt.Errorf("%s: %w", step, err)
		res.Finished = time.Now()
		return res
	}

	inName, outName := stagingNames(id, src.Name)
	defer c.unstage(inName, outName)

	logger.Infof("Job %s: compressing %s at %s (crf %s)", id, src.Name, tier, res.CRF)

	data, err := src.ReadAll()
	if err != nil {
		return fail("read input", err)
	}
	res.InputSize = int64(len(data))

	if err := c.engine.WriteFile(ctx, inName, data); err != nil {
		return fail("stage input", err)
	}
	data = nil

	if err := c.engine.Run(ctx, engine.CompressArgs(inName, outName, res.CRF)...); err != nil {
		return fail("encode", err)
	}

	out, err := c.engine.ReadFile(ctx, outName)
	if err != nil {
		return fail("retrieve output", err)
	}
	res.OutputSize = int64(len(out))

	artifact := delivery.Artifact{
		Name:        delivery.OutputName(src.Name),
		ContentType: OutputContentType,
		Data:        out,
	}
	res.Output = artifact.Name

	sink := req.Sink
	if sink == "" {
		sink = "unknown"
	}
	receipt, err := req.Deliverer.Deliver(ctx, artifact)
	if err != nil {
		metrics.Deliveries.WithLabelValues(sink, "error").Inc()
		return fail("deliver", err)
	}
	metrics.Deliveries.WithLabelValues(sink, "ok").Inc()

	res.Receipt = receipt
	res.Status = history.StatusSuccess
	res.Finished = time.Now()
	return res
}

func (c *Controller) unstage(names ...string) {
	for _, name := range names {
		if err := c.engine.Remove(name); err != nil {
			logger.Warnf("Failed to remove staged file %s: %v", name, err)
		}
	}
}

// finish sets the terminal state, records history and updates metrics.
func (c *Controller) finish(ctx context.Context, res Result) {
	outcome := "success"
	switch {
	case res.Err == nil:
		c.setState(res.JobID, JobStateCompleted)
	case ctx.Err() != nil:
		outcome = "cancelled"
		c.setState(res.JobID, JobStateCancelled)
	default:
		outcome = "failure"
		c.setState(res.JobID, JobStateFailed)
	}

	metrics.JobsTotal.WithLabelValues(outcome, string(res.Tier)).Inc()
	metrics.JobDuration.WithLabelValues(string(res.Tier)).Observe(res.Finished.Sub(res.Started).Seconds())
	if res.Err == nil {
		metrics.BytesIn.Add(float64(res.InputSize))
		metrics.BytesOut.Add(float64(res.OutputSize))
		logger.Infof("Job %s: delivered %s (%d -> %d bytes) via %s",
			res.JobID, res.Output, res.InputSize, res.OutputSize, res.Receipt.Sink)
	} else {
		logger.Errorf("Job %s: %v", res.JobID, res.Err)
	}

	if c.history != nil {
		if err := c.history.Put(res.Record()); err != nil {
			logger.Errorf("Failed to record job %s: %v", res.JobID, err)
		}
	}
}
