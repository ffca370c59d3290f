package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/cuemby/topio-agent/pkg/types"
)

// countProcesses counts `pgrep -a` lines whose command line contains marker,
// case-insensitively.
func countProcesses(output, marker string) int {
	marker = strings.ToLower(marker)
	n := 0
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(strings.ToLower(line), marker) {
			n++
		}
	}
	return n
}

// parseJoinStatus maps `topio node isJoined` output onto a JoinStatus
func parseJoinStatus(output string) (types.JoinStatus, error) {
	line := firstLine(output)
	switch {
	case strings.Contains(line, "YES"):
		return types.JoinJoined, nil
	case strings.Contains(line, "not ready"):
		return types.JoinNotReady, nil
	case strings.Contains(line, "not running"):
		return types.JoinNotRunning, nil
	default:
		return "", fmt.Errorf("%w: join status %q", ErrUnexpectedOutput, line)
	}
}

// parseVersionOutput returns the first run of digits and dots in the
// "topio version" line of `topio -v`.
func parseVersionOutput(output string) (string, error) {
	src := output
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "topio version") {
			src = line
			break
		}
	}

	start := strings.IndexFunc(src, unicode.IsDigit)
	if start < 0 {
		return "", fmt.Errorf("%w: no version in %q", ErrUnexpectedOutput, strings.TrimSpace(output))
	}
	end := start
	for end < len(src) && (src[end] == '.' || (src[end] >= '0' && src[end] <= '9')) {
		end++
	}
	return strings.TrimRight(src[start:end], "."), nil
}

type rewardResponse struct {
	Data *struct {
		Accumulated         *uint64 `json:"accumulated"`
		AccumulatedDecimals *uint64 `json:"accumulated_decimals"`
		IssueTime           *uint64 `json:"issue_time"`
		LastClaimTime       *uint64 `json:"last_claim_time"`
		Unclaimed           *uint64 `json:"unclaimed"`
		UnclaimedDecimals   *uint64 `json:"unclaimed_decimals"`
	} `json:"data"`
}

// parseReward decodes `topio mining queryMinerReward` output
func parseReward(output string) (types.RewardSnapshot, error) {
	var resp rewardResponse
	if err := json.Unmarshal([]byte(output), &resp); err != nil {
		return types.RewardSnapshot{}, fmt.Errorf("%w: reward json: %v", ErrUnexpectedOutput, err)
	}
	d := resp.Data
	if d == nil {
		return types.RewardSnapshot{}, fmt.Errorf("%w: reward json has no data object", ErrUnexpectedOutput)
	}

	fields := map[string]*uint64{
		"accumulated":          d.Accumulated,
		"accumulated_decimals": d.AccumulatedDecimals,
		"issue_time":           d.IssueTime,
		"last_claim_time":      d.LastClaimTime,
		"unclaimed":            d.Unclaimed,
		"unclaimed_decimals":   d.UnclaimedDecimals,
	}
	for name, v := range fields {
		if v == nil {
			return types.RewardSnapshot{}, fmt.Errorf("%w: reward json missing %s", ErrUnexpectedOutput, name)
		}
	}

	return types.RewardSnapshot{
		Accumulated:         *d.Accumulated,
		AccumulatedDecimals: *d.AccumulatedDecimals,
		IssueTime:           *d.IssueTime,
		LastClaimTime:       *d.LastClaimTime,
		Unclaimed:           *d.Unclaimed,
		UnclaimedDecimals:   *d.UnclaimedDecimals,
	}, nil
}

// parseBalance reads the default account's balance from the head of
// `topio wallet listAccounts`. Fractions are truncated.
func parseBalance(output string) (uint64, error) {
	sc := bufio.NewScanner(strings.NewReader(output))
	for i := 0; i < 5 && sc.Scan(); i++ {
		line := sc.Text()
		if !strings.Contains(line, "balance") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) || v >= math.MaxUint64 {
			return 0, fmt.Errorf("%w: balance %q", ErrUnexpectedOutput, fields[1])
		}
		return uint64(v), nil
	}
	return 0, fmt.Errorf("%w: no balance line in %q", ErrUnexpectedOutput, firstLine(output))
}

func firstLine(s string) string {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return s
}
