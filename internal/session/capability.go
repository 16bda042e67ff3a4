package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcp-probe/internal/domain"
	"github.com/mcp-probe/internal/protocol"
)

// ResourceList is the outcome of best-effort resource discovery. A target
// that does not implement the capability yields Supported=false with the
// remote's reason, never an error.
type ResourceList struct {
	Supported bool                        `json:"supported"`
	Reason    string                      `json:"reason,omitempty"`
	Resources []domain.ResourceDescriptor `json:"resources,omitempty"`
}

// PromptList is the outcome of best-effort prompt discovery.
type PromptList struct {
	Supported bool                      `json:"supported"`
	Reason    string                    `json:"reason,omitempty"`
	Prompts   []domain.PromptDescriptor `json:"prompts,omitempty"`
}

// ListResources discovers the target's resources. Capability absence
// collapses into an Unsupported result; genuine timeouts, cancellation, and
// session closure still propagate as errors.
func (s *Session) ListResources(ctx context.Context) (*ResourceList, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	raw, err := s.roundTrip(ctx, protocol.MethodResourcesList, nil)
	if err != nil {
		if fatal, ferr := splitCapabilityError(ctx, err); fatal {
			return nil, ferr
		}
		return &ResourceList{Supported: false, Reason: err.Error()}, nil
	}

	var result struct {
		Resources []domain.ResourceDescriptor `json:"resources"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return &ResourceList{Supported: false, Reason: fmt.Sprintf("malformed resource list: %v", err)}, nil
	}

	return &ResourceList{Supported: true, Resources: result.Resources}, nil
}

// ListPrompts discovers the target's prompts, with the same best-effort
// semantics as ListResources.
func (s *Session) ListPrompts(ctx context.Context) (*PromptList, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	raw, err := s.roundTrip(ctx, protocol.MethodPromptsList, nil)
	if err != nil {
		if fatal, ferr := splitCapabilityError(ctx, err); fatal {
			return nil, ferr
		}
		return &PromptList{Supported: false, Reason: err.Error()}, nil
	}

	var result struct {
		Prompts []domain.PromptDescriptor `json:"prompts"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return &PromptList{Supported: false, Reason: fmt.Sprintf("malformed prompt list: %v", err)}, nil
	}

	return &PromptList{Supported: true, Prompts: result.Prompts}, nil
}

// splitCapabilityError decides whether a discovery failure is a genuine
// transport problem (propagate) or a missing capability (collapse into
// Unsupported). Masking a timeout or closed session as Unsupported would
// hide real faults.
func splitCapabilityError(ctx context.Context, err error) (fatal bool, out error) {
	if errors.Is(err, domain.ErrTimeout) || errors.Is(err, domain.ErrSessionClosed) {
		return true, err
	}
	if ctx.Err() != nil {
		return true, ctx.Err()
	}
	return false, nil
}
