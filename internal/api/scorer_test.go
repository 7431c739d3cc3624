package api

import (
	"errors"
	"testing"

	"github.com/ShayCichocki/baton/pkg/models"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     models.QualityVerdict
		wantErr  error
	}{
		{
			name:     "well formed accept",
			response: "SCORE: 0.95\nOUTCOME: accept\nRATIONALE: Meets every requirement.",
			want:     models.QualityVerdict{Score: 0.95, Outcome: models.OutcomeAccept, Rationale: "Meets every requirement."},
		},
		{
			name:     "retry with multiline rationale",
			response: "SCORE: 0.4\nOUTCOME: retry\nRATIONALE: The parser is incomplete.\nIt also lacks tests.",
			want:     models.QualityVerdict{Score: 0.4, Outcome: models.OutcomeRetry, Rationale: "The parser is incomplete.\nIt also lacks tests."},
		},
		{
			name:     "escalate lowercase mixed case labels",
			response: "score: 0.1\noutcome: escalate\nrationale: Task description is self-contradictory.",
			want:     models.QualityVerdict{Score: 0.1, Outcome: models.OutcomeEscalate, Rationale: "Task description is self-contradictory."},
		},
		{
			name:     "leading prose before the block",
			response: "Here is my assessment.\n\nSCORE: 0.8\nOUTCOME: retry\nRATIONALE: Close, but error paths are unhandled.",
			want:     models.QualityVerdict{Score: 0.8, Outcome: models.OutcomeRetry, Rationale: "Close, but error paths are unhandled."},
		},
		{
			name:     "score without leading zero",
			response: "SCORE: .7\nOUTCOME: retry\nRATIONALE: ok",
			want:     models.QualityVerdict{Score: 0.7, Outcome: models.OutcomeRetry, Rationale: "ok"},
		},
		{
			name:     "missing rationale tolerated",
			response: "SCORE: 1.0\nOUTCOME: accept",
			want:     models.QualityVerdict{Score: 1.0, Outcome: models.OutcomeAccept},
		},
		{
			name:     "empty response",
			response: "   \n  ",
			wantErr:  ErrMalformedVerdict,
		},
		{
			name:     "missing score",
			response: "OUTCOME: accept\nRATIONALE: fine",
			wantErr:  ErrMalformedVerdict,
		},
		{
			name:     "score out of range",
			response: "SCORE: 1.5\nOUTCOME: accept\nRATIONALE: fine",
			wantErr:  ErrScoreOutOfRange,
		},
		{
			name:     "missing outcome",
			response: "SCORE: 0.9\nRATIONALE: fine",
			wantErr:  ErrMissingOutcome,
		},
		{
			name:     "unrecognized outcome word",
			response: "SCORE: 0.9\nOUTCOME: maybe\nRATIONALE: fine",
			wantErr:  ErrMissingOutcome,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVerdict(tt.response)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseVerdict error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVerdict failed: %v", err)
			}
			if got.Score != tt.want.Score || got.Outcome != tt.want.Outcome || got.Rationale != tt.want.Rationale {
				t.Errorf("ParseVerdict = %+v, want %+v", got, tt.want)
			}
		})
	}
}
