package gateway

import (
	"testing"

	"github.com/cuemby/topio-agent/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJoinStatus(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    types.JoinStatus
		wantErr bool
	}{
		{name: "joined", output: "YES\n", want: types.JoinJoined},
		{name: "not ready", output: "topio not ready, please wait\n", want: types.JoinNotReady},
		{name: "not running", output: "topio not running\n", want: types.JoinNotRunning},
		{name: "leading blank line", output: "\nYES", want: types.JoinJoined},
		{name: "empty", output: "", wantErr: true},
		{name: "unknown", output: "connection refused", wantErr: true},
		{name: "match only on first line", output: "something\nYES", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJoinStatus(tt.output)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnexpectedOutput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseVersionOutput(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{name: "plain", output: "topio version 1.7.1\n", want: "1.7.1"},
		{name: "with build info", output: "topio version 1.8.0 (abcdef)\nbuild date 2023-01-01\n", want: "1.8.0"},
		{name: "banner first", output: "TOP Network\ntopio version 1.9.2\n", want: "1.9.2"},
		{name: "trailing dot", output: "topio version 1.9.2.\n", want: "1.9.2"},
		{name: "no digits", output: "topio: not found", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVersionOutput(tt.output)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnexpectedOutput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseReward(t *testing.T) {
	valid := `{"data":{"accumulated":5000000000,"accumulated_decimals":0,"issue_time":100,"last_claim_time":90,"unclaimed":2500000000,"unclaimed_decimals":12},"errmsg":"OK","errno":0}`

	got, err := parseReward(valid)
	require.NoError(t, err)
	assert.Equal(t, types.RewardSnapshot{
		Accumulated:       5_000_000_000,
		IssueTime:         100,
		LastClaimTime:     90,
		Unclaimed:         2_500_000_000,
		UnclaimedDecimals: 12,
	}, got)

	bad := map[string]string{
		"not json":       "account not found",
		"no data":        `{"errno":1}`,
		"data not obj":   `{"data":"x"}`,
		"missing field":  `{"data":{"accumulated":1,"accumulated_decimals":0,"issue_time":1,"last_claim_time":1,"unclaimed":1}}`,
		"negative value": `{"data":{"accumulated":-1,"accumulated_decimals":0,"issue_time":1,"last_claim_time":1,"unclaimed":1,"unclaimed_decimals":0}}`,
		"float value":    `{"data":{"accumulated":1.5,"accumulated_decimals":0,"issue_time":1,"last_claim_time":1,"unclaimed":1,"unclaimed_decimals":0}}`,
	}
	for name, output := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := parseReward(output)
			assert.ErrorIs(t, err, ErrUnexpectedOutput)
		})
	}
}

func TestParseBalance(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    uint64
		wantErr bool
	}{
		{
			name:   "integer",
			output: "account #0: T80000abc\nbalance: 150 TOP\nnonce: 3\n",
			want:   150,
		},
		{
			name:   "fraction truncated",
			output: "account #0: T80000abc\nbalance: 90.999999 TOP\n",
			want:   90,
		},
		{
			name:    "balance beyond first five lines",
			output:  "a\nb\nc\nd\ne\nbalance: 10\n",
			wantErr: true,
		},
		{name: "not a number", output: "balance: lots\n", wantErr: true},
		{name: "negative", output: "balance: -1\n", wantErr: true},
		{name: "empty", output: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBalance(tt.output)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnexpectedOutput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountProcesses(t *testing.T) {
	out := "101 topio node startNode\n102 topio node safebox\n103 /usr/bin/topio node startnode --flag\n"
	assert.Equal(t, 2, countProcesses(out, "startnode"))
	assert.Equal(t, 1, countProcesses(out, "safebox"))
	assert.Equal(t, 0, countProcesses("", "startnode"))
}
