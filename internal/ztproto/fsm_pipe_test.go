package ztproto

import "testing"

func TestApplyPipeEventTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		state      PipeState
		event      PipeEvent
		wantState  PipeState
		wantAction PipeAction
	}{
		{"live close", PipeLive, PipeEventClose, PipeClosing, PipeActionEmitDiscReq},
		{"live remote disconnect", PipeLive, PipeEventRemoteDisconnect, PipeClosing, PipeActionFailPendingClosed},
		{"live protocol error", PipeLive, PipeEventProtocolError, PipeClosing, PipeActionFailPendingProtocolError},
		{"closing released", PipeClosing, PipeEventResourcesReleased, PipeDead, PipeActionReleaseResources},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ApplyPipeEvent(tt.state, tt.event)
			if !got.Changed {
				t.Fatalf("expected a transition, got none")
			}
			if got.NewState != tt.wantState {
				t.Fatalf("NewState = %v, want %v", got.NewState, tt.wantState)
			}
			found := false
			for _, a := range got.Actions {
				if a == tt.wantAction {
					found = true
				}
			}
			if !found {
				t.Fatalf("Actions = %v, want to contain %v", got.Actions, tt.wantAction)
			}
		})
	}
}

func TestApplyPipeEventDeadIsTerminal(t *testing.T) {
	t.Parallel()

	for _, e := range []PipeEvent{PipeEventClose, PipeEventRemoteDisconnect, PipeEventProtocolError, PipeEventResourcesReleased} {
		got := ApplyPipeEvent(PipeDead, e)
		if got.Changed {
			t.Fatalf("event %v moved out of dead state to %v", e, got.NewState)
		}
	}
}
