package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"vidcrush/logger"
)

const callbackTimeout = 30 * time.Second

// CallbackPayload is POSTed to a job's callback URL once it finishes.
type CallbackPayload struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	Output     string `json:"output,omitempty"`
	Tier       string `json:"tier"`
	CRF        string `json:"crf"`
	InputSize  int64  `json:"input_size"`
	OutputSize int64  `json:"output_size,omitempty"`
	Sink       string `json:"sink,omitempty"`
	Location   string `json:"location,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

func newCallbackPayload(res Result) CallbackPayload {
	p := CallbackPayload{
		JobID:      res.JobID,
		Status:     string(res.Status),
		Output:     res.Output,
		Tier:       string(res.Tier),
		CRF:        res.CRF,
		InputSize:  res.InputSize,
		OutputSize: res.OutputSize,
		Sink:       res.Receipt.Sink,
		Location:   res.Receipt.Location,
		Timestamp:  res.Finished.Unix(),
	}
	if res.Err != nil {
		p.Error = res.Err.Error()
	}
	return p
}

// sendCallback posts the result to req.CallbackURL. Callback failures never
// fail the job.
func sendCallback(ctx context.Context, client *http.Client, req Request, res Result) error {
	body, err := json.Marshal(newCallbackPayload(res))
	if err != nil {
		return fmt.Errorf("failed to marshal callback payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, callbackTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "vidcrush/1.0")
	for key, value := range req.CallbackHeaders {
		httpReq.Header.Set(key, value)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned non-2xx status: %d", resp.StatusCode)
	}

	logger.Infof("Sent callback for job %s to %s", res.JobID, req.CallbackURL)
	return nil
}
