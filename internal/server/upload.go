package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// SolutionUpload is the POST body for api/solutions/new. Vertices holds the
// normalized solution and is omitted for failure-metadata uploads, which
// the server accepts only when a solver UUID identifies the submitter.
type SolutionUpload struct {
	InstanceID      uint32     `json:"instance_id"`
	RunUUID         uuid.UUID  `json:"run_uuid"`
	SolverUUID      *uuid.UUID `json:"solver_uuid,omitempty"`
	SecondsComputed float64    `json:"seconds_computed"`
	State           string     `json:"state"`
	Score           *int       `json:"score,omitempty"`
	Vertices        []int      `json:"vertices,omitempty"`
}

// UploadSolution posts one result to the server, retrying transient
// failures. A 4xx response is returned as a RejectedError.
func (c *Client) UploadSolution(ctx context.Context, up *SolutionUpload) error {
	payload, err := json.Marshal(up)
	if err != nil {
		return fmt.Errorf("encode solution upload: %w", err)
	}
	u := c.endpoint(pathSolutionUpload)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return checkStatus(resp)
	}
	if err := backoff.Retry(op, newBackOff(ctx)); err != nil {
		return fmt.Errorf("upload solution for iid %d: %w", up.InstanceID, err)
	}
	return nil
}
