package engine

import (
	"fmt"
	"strconv"

	"github.com/domset-tools/stride-runner/internal/store"
)

// solverEnv builds the STRIDE_* variables handed to the solver. Attributes
// the metadata does not carry are left unset rather than zeroed.
func (e *Engine) solverEnv(meta *store.InstanceMetadata) []string {
	if e.opts.NoEnv {
		return nil
	}

	env := []string{
		fmt.Sprintf("STRIDE_IID=%d", meta.IID),
		fmt.Sprintf("STRIDE_NODES=%d", meta.Nodes),
		fmt.Sprintf("STRIDE_EDGES=%d", meta.Edges),
		fmt.Sprintf("STRIDE_TIMEOUT_SEC=%d", int(e.opts.Timeout.Seconds())),
		fmt.Sprintf("STRIDE_GRACE_SEC=%d", int(e.opts.Grace.Seconds())),
		"STRIDE_RUN_UUID=" + e.runUUID.String(),
	}
	if meta.BestScore != nil {
		env = append(env, fmt.Sprintf("STRIDE_BEST_SCORE=%d", *meta.BestScore))
	}
	if meta.Diameter != nil {
		env = append(env, fmt.Sprintf("STRIDE_DIAMETER=%d", *meta.Diameter))
	}
	if meta.Treewidth != nil {
		env = append(env, fmt.Sprintf("STRIDE_TREEWIDTH=%d", *meta.Treewidth))
	}
	if meta.Planar != nil {
		env = append(env, "STRIDE_PLANAR="+strconv.FormatBool(*meta.Planar))
	}
	if meta.Bipartite != nil {
		env = append(env, "STRIDE_BIPARTITE="+strconv.FormatBool(*meta.Bipartite))
	}
	if e.opts.SolverUUID != nil {
		env = append(env, "STRIDE_SOLVER_UUID="+e.opts.SolverUUID.String())
	}
	return env
}
