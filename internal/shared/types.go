package shared

// Asynq task type names. The "domain:action" convention keeps the
// worker dashboard readable.
const (
	TypeProcessModIcon   = "mod:process_icon"
	TypeSweepOrphanBlobs = "blob:sweep_orphans"
	TypeBackfillIndexes  = "index:backfill"
)

// Queue names, highest priority first
const (
	QueueHigh    = "high"
	QueueDefault = "default"
	QueueLow     = "low"
)

// ProcessModIconPayload carries the icon resize job parameters
type ProcessModIconPayload struct {
	ModID string `json:"modId"`
	Scope string `json:"scope"`
}

// SweepOrphanBlobsPayload carries the orphan sweep parameters.
// DryRun lists reclaimable blobs without deleting them.
type SweepOrphanBlobsPayload struct {
	DryRun bool `json:"dryRun"`
}

// BackfillIndexesPayload carries the index backfill parameters.
// An empty Scope means all scopes.
type BackfillIndexesPayload struct {
	Scope string `json:"scope"`
}

// Cache key layout. Detail entries are keyed per mod; listing
// entries are invalidated together via the pattern.
const (
	CacheKeyModListPattern = "mod:list:*"
)

// CacheKeyModDetail is the cache key for one mod's detail response
func CacheKeyModDetail(modID string) string {
	return "mod:detail:" + modID
}

// CacheKeyModList is the cache key for a public category listing
func CacheKeyModList(category string) string {
	if category == "" {
		category = "all"
	}
	return "mod:list:category:" + category
}
