package internaldefs

import (
	"strconv"

	goRefresh "github.com/MrEthical07/goRefresh"
)

// CounterDef defines a public type used by goRefresh APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	Name  string
	Help  string
	Value func(goRefresh.MetricsSnapshot) uint64
}

// CounterDefs is an exported constant or variable used by the token lifecycle engine.
var CounterDefs = []CounterDef{
	{Name: "gorefresh_issue_success_total", Help: "Tokens issued.", Value: func(s goRefresh.MetricsSnapshot) uint64 { return s.IssueSuccess }},
	{Name: "gorefresh_issue_blocked_total", Help: "Issuance attempts rejected by a revoked or compromised family.", Value: func(s goRefresh.MetricsSnapshot) uint64 { return s.IssueBlocked }},
	{Name: "gorefresh_issue_failure_total", Help: "Issuance attempts failed on the store.", Value: func(s goRefresh.MetricsSnapshot) uint64 { return s.IssueFailure }},
	{Name: "gorefresh_rotate_success_total", Help: "Successful rotations.", Value: func(s goRefresh.MetricsSnapshot) uint64 { return s.RotateSuccess }},
	{Name: "gorefresh_rotate_not_found_total", Help: "Rotations of absent or expired tokens.", Value: func(s goRefresh.MetricsSnapshot) uint64 { return s.RotateNotFound }},
	{Name: "gorefresh_rotate_reuse_total", Help: "Reuse detections; each one locked a token family.", Value: func(s goRefresh.MetricsSnapshot) uint64 { return s.RotateReuse }},
	{Name: "gorefresh_rotate_family_revoked_total", Help: "Rotations rejected by an already-locked family.", Value: func(s goRefresh.MetricsSnapshot) uint64 { return s.RotateFamilyRevoked }},
	{Name: "gorefresh_rotate_failure_total", Help: "Rotations failed on the store.", Value: func(s goRefresh.MetricsSnapshot) uint64 { return s.RotateFailure }},
	{Name: "gorefresh_revoke_token_total", Help: "Token-scoped revocation cascades.", Value: func(s goRefresh.MetricsSnapshot) uint64 { return s.RevokeToken }},
	{Name: "gorefresh_revoke_family_total", Help: "Family-scoped revocations.", Value: func(s goRefresh.MetricsSnapshot) uint64 { return s.RevokeFamily }},
	{Name: "gorefresh_revoke_member_total", Help: "Member-wide revocation fan-outs.", Value: func(s goRefresh.MetricsSnapshot) uint64 { return s.RevokeMember }},
}

// RotateLatencyName is an exported constant or variable used by the token lifecycle engine.
const RotateLatencyName = "gorefresh_rotate_latency_ms"

// RotateLatencyHelp is an exported constant or variable used by the token lifecycle engine.
const RotateLatencyHelp = "Rotation latency in milliseconds."

// RotateLatencyBoundsMS mirrors the engine's histogram upper bounds in
// milliseconds; -1 marks the overflow bucket.
var RotateLatencyBoundsMS = []int64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, -1}

// AuditDroppedName is an exported constant or variable used by the token lifecycle engine.
const AuditDroppedName = "gorefresh_audit_dropped_total"

// AuditDroppedHelp is an exported constant or variable used by the token lifecycle engine.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// BucketSuffix renders a histogram upper bound as an instrument name suffix;
// the overflow bucket (UpperMS == -1) becomes "inf".
//
// BucketSuffix does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func BucketSuffix(upperMS int64) string {
	if upperMS < 0 {
		return "inf"
	}
	return strconv.FormatInt(upperMS, 10)
}

// CumulativeBuckets converts per-bucket counts into running totals.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(buckets []goRefresh.LatencyBucket) []uint64 {
	out := make([]uint64, len(buckets))
	var running uint64
	for i, bucket := range buckets {
		running += bucket.Count
		out[i] = running
	}
	return out
}
