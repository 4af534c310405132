package service

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/downloads"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/model"
	variantmodel "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/kv"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/storage"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/authz"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/upload"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/crypto"
)

// =====================================================
// IN-MEMORY FAKES
// =====================================================

func scopedKey(scope, id string) string {
	return scope + "|" + id
}

type fakeModRepo struct {
	mods     map[string]*model.Mod
	slugs    map[string]string // slug -> modID
	versions map[string]*model.ModVersion
	index    map[string][]string // modID -> version ids, newest first
}

func newFakeModRepo() *fakeModRepo {
	return &fakeModRepo{
		mods:     make(map[string]*model.Mod),
		slugs:    make(map[string]string),
		versions: make(map[string]*model.ModVersion),
		index:    make(map[string][]string),
	}
}

func copyMod(m *model.Mod) *model.Mod {
	c := *m
	c.Variants = append([]variantmodel.Variant(nil), m.Variants...)
	return &c
}

func (r *fakeModRepo) Get(_ context.Context, scope, modID string) (*model.Mod, error) {
	m, ok := r.mods[modID]
	if !ok || m.CustomerID != scope {
		return nil, model.ErrModNotFound
	}
	return copyMod(m), nil
}

func (r *fakeModRepo) Find(_ context.Context, modID string) (*model.Mod, error) {
	m, ok := r.mods[modID]
	if !ok {
		return nil, model.ErrModNotFound
	}
	return copyMod(m), nil
}

func (r *fakeModRepo) FindBySlug(_ context.Context, slug string) (*model.Mod, error) {
	modID, ok := r.slugs[slug]
	if !ok {
		return nil, model.ErrModNotFound
	}
	m, ok := r.mods[modID]
	if !ok {
		return nil, model.ErrModNotFound
	}
	return copyMod(m), nil
}

func (r *fakeModRepo) Save(_ context.Context, mod *model.Mod) error {
	r.mods[mod.ModID] = copyMod(mod)
	return nil
}

func (r *fakeModRepo) Delete(_ context.Context, mod *model.Mod) error {
	delete(r.mods, mod.ModID)
	delete(r.slugs, mod.Slug)
	return nil
}

func (r *fakeModRepo) ClaimSlug(_ context.Context, slug, modID, _ string) error {
	if _, taken := r.slugs[slug]; taken {
		return model.ErrSlugTaken
	}
	r.slugs[slug] = modID
	return nil
}

func (r *fakeModRepo) ReleaseSlug(_ context.Context, slug string) error {
	delete(r.slugs, slug)
	return nil
}

func summaryOf(m *model.Mod) kv.ModSummary {
	return kv.ModSummary{
		ModID:         m.ModID,
		CustomerID:    m.CustomerID,
		Slug:          m.Slug,
		Title:         m.Title,
		Category:      m.Category,
		Visibility:    m.Visibility,
		Status:        m.Status,
		LatestVersion: m.LatestVersion,
		DownloadCount: m.DownloadCount,
		UpdatedAt:     m.UpdatedAt,
	}
}

func sortSummaries(summaries []kv.ModSummary) []kv.ModSummary {
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ModID < summaries[j].ModID })
	return summaries
}

func (r *fakeModRepo) ListPublicByCategory(_ context.Context, category string) ([]kv.ModSummary, error) {
	summaries := make([]kv.ModSummary, 0)
	for _, m := range r.mods {
		if m.Visibility != authz.VisibilityPublic || m.Status != model.StatusPublished {
			continue
		}
		if category != "" && m.Category != category {
			continue
		}
		summaries = append(summaries, summaryOf(m))
	}
	return sortSummaries(summaries), nil
}

func (r *fakeModRepo) ListByCustomer(_ context.Context, customerID string) ([]kv.ModSummary, error) {
	summaries := make([]kv.ModSummary, 0)
	for _, m := range r.mods {
		if m.CustomerID == customerID {
			summaries = append(summaries, summaryOf(m))
		}
	}
	return sortSummaries(summaries), nil
}

func (r *fakeModRepo) ListAllSummaries(_ context.Context) ([]kv.ModSummary, error) {
	summaries := make([]kv.ModSummary, 0, len(r.mods))
	for _, m := range r.mods {
		summaries = append(summaries, summaryOf(m))
	}
	return sortSummaries(summaries), nil
}

func (r *fakeModRepo) AllMods(_ context.Context) ([]model.Mod, error) {
	mods := make([]model.Mod, 0, len(r.mods))
	for _, m := range r.mods {
		mods = append(mods, *copyMod(m))
	}
	return mods, nil
}

func (r *fakeModRepo) GetVersion(_ context.Context, scope, versionID string) (*model.ModVersion, error) {
	v, ok := r.versions[scopedKey(scope, versionID)]
	if !ok {
		return nil, model.ErrVersionNotFound
	}
	c := *v
	return &c, nil
}

func (r *fakeModRepo) SaveVersion(_ context.Context, scope string, version *model.ModVersion) error {
	v := *version
	r.versions[scopedKey(scope, version.VersionID)] = &v
	r.index[version.ModID] = append([]string{version.VersionID}, r.index[version.ModID]...)
	return nil
}

func (r *fakeModRepo) UpdateVersion(_ context.Context, scope string, version *model.ModVersion) error {
	v := *version
	r.versions[scopedKey(scope, version.VersionID)] = &v
	return nil
}

func (r *fakeModRepo) DeleteVersion(_ context.Context, scope string, version *model.ModVersion) error {
	delete(r.versions, scopedKey(scope, version.VersionID))
	ids := r.index[version.ModID]
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != version.VersionID {
			kept = append(kept, id)
		}
	}
	r.index[version.ModID] = kept
	return nil
}

func (r *fakeModRepo) ListVersions(ctx context.Context, scope, modID string) ([]model.ModVersion, error) {
	versions := make([]model.ModVersion, 0, len(r.index[modID]))
	for _, id := range r.index[modID] {
		v, err := r.GetVersion(ctx, scope, id)
		if err != nil {
			continue
		}
		versions = append(versions, *v)
	}
	return versions, nil
}

func (r *fakeModRepo) ListVersionIDs(_ context.Context, modID string) ([]string, error) {
	return append([]string(nil), r.index[modID]...), nil
}

func (r *fakeModRepo) DeleteVersionIndex(_ context.Context, modID string) error {
	delete(r.index, modID)
	return nil
}

func (r *fakeModRepo) AllVersions(_ context.Context) ([]model.ModVersion, error) {
	versions := make([]model.ModVersion, 0, len(r.versions))
	for _, v := range r.versions {
		versions = append(versions, *v)
	}
	return versions, nil
}

type fakeVariantRepo struct {
	variants map[string]*variantmodel.Variant
	versions map[string]*variantmodel.VariantVersion
	index    map[string][]string // variantID -> version ids, newest first
}

func newFakeVariantRepo() *fakeVariantRepo {
	return &fakeVariantRepo{
		variants: make(map[string]*variantmodel.Variant),
		versions: make(map[string]*variantmodel.VariantVersion),
		index:    make(map[string][]string),
	}
}

func (r *fakeVariantRepo) Get(_ context.Context, scope, variantID string) (*variantmodel.Variant, error) {
	v, ok := r.variants[scopedKey(scope, variantID)]
	if !ok {
		return nil, variantmodel.ErrVariantNotFound
	}
	c := *v
	return &c, nil
}

func (r *fakeVariantRepo) Save(_ context.Context, scope string, variant *variantmodel.Variant) error {
	v := *variant
	r.variants[scopedKey(scope, variant.VariantID)] = &v
	return nil
}

func (r *fakeVariantRepo) Delete(_ context.Context, scope, variantID string) error {
	delete(r.variants, scopedKey(scope, variantID))
	return nil
}

func (r *fakeVariantRepo) GetVersion(_ context.Context, scope, variantVersionID string) (*variantmodel.VariantVersion, error) {
	v, ok := r.versions[scopedKey(scope, variantVersionID)]
	if !ok {
		return nil, variantmodel.ErrVersionNotFound
	}
	c := *v
	return &c, nil
}

func (r *fakeVariantRepo) SaveVersion(_ context.Context, scope string, version *variantmodel.VariantVersion) error {
	v := *version
	r.versions[scopedKey(scope, version.VariantVersionID)] = &v
	r.index[version.VariantID] = append([]string{version.VariantVersionID}, r.index[version.VariantID]...)
	return nil
}

func (r *fakeVariantRepo) UpdateVersion(_ context.Context, scope string, version *variantmodel.VariantVersion) error {
	v := *version
	r.versions[scopedKey(scope, version.VariantVersionID)] = &v
	return nil
}

func (r *fakeVariantRepo) DeleteVersion(_ context.Context, scope string, version *variantmodel.VariantVersion) error {
	delete(r.versions, scopedKey(scope, version.VariantVersionID))
	ids := r.index[version.VariantID]
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != version.VariantVersionID {
			kept = append(kept, id)
		}
	}
	r.index[version.VariantID] = kept
	return nil
}

func (r *fakeVariantRepo) ListVersions(ctx context.Context, scope, variantID string) ([]variantmodel.VariantVersion, error) {
	versions := make([]variantmodel.VariantVersion, 0, len(r.index[variantID]))
	for _, id := range r.index[variantID] {
		v, err := r.GetVersion(ctx, scope, id)
		if err != nil {
			continue
		}
		versions = append(versions, *v)
	}
	return versions, nil
}

func (r *fakeVariantRepo) ListVersionIDs(_ context.Context, variantID string) ([]string, error) {
	return append([]string(nil), r.index[variantID]...), nil
}

func (r *fakeVariantRepo) DeleteVersionIndex(_ context.Context, variantID string) error {
	delete(r.index, variantID)
	return nil
}

func (r *fakeVariantRepo) AllVersions(_ context.Context) ([]variantmodel.VariantVersion, error) {
	versions := make([]variantmodel.VariantVersion, 0, len(r.versions))
	for _, v := range r.versions {
		versions = append(versions, *v)
	}
	return versions, nil
}

type fakeBlobs struct {
	objects map[string][]byte
	meta    map[string]*storage.ObjectMetadata
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{
		objects: make(map[string][]byte),
		meta:    make(map[string]*storage.ObjectMetadata),
	}
}

func (b *fakeBlobs) Upload(_ context.Context, key string, data []byte, _ string, metadata *storage.ObjectMetadata) error {
	b.objects[key] = append([]byte(nil), data...)
	if metadata != nil {
		m := *metadata
		b.meta[key] = &m
	}
	return nil
}

func (b *fakeBlobs) Download(_ context.Context, key string) ([]byte, *storage.ObjectMetadata, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, nil, storage.ErrBlobNotFound
	}
	return append([]byte(nil), data...), b.meta[key], nil
}

func (b *fakeBlobs) Delete(_ context.Context, key string) error {
	delete(b.objects, key)
	delete(b.meta, key)
	return nil
}

func (b *fakeBlobs) DeleteByPrefix(_ context.Context, prefix string) error {
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			delete(b.objects, key)
			delete(b.meta, key)
		}
	}
	return nil
}

func (b *fakeBlobs) RemoveObjects(ctx context.Context, keys []string) error {
	for _, key := range keys {
		_ = b.Delete(ctx, key)
	}
	return nil
}

func (b *fakeBlobs) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var infos []storage.ObjectInfo
	for key, data := range b.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return infos, nil
}

func (b *fakeBlobs) HealthCheck(_ context.Context) error { return nil }

// fakeCache stores entries for real so hit/miss behavior is
// observable, and records deletions
type fakeCache struct {
	entries  map[string][]byte
	deleted  []string
	patterns []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.entries, key)
	}
	c.deleted = append(c.deleted, keys...)
	return nil
}

func (c *fakeCache) DeletePattern(_ context.Context, pattern string) error {
	c.patterns = append(c.patterns, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *fakeCache) Ping(_ context.Context) error { return nil }

func (c *fakeCache) Increment(_ context.Context, _ string) (int64, error) { return 0, nil }

func (c *fakeCache) Exists(_ context.Context, _ string) (bool, error) { return false, nil }

func (c *fakeCache) Expire(_ context.Context, _ string, _ time.Duration) error { return nil }

func (c *fakeCache) TTL(_ context.Context, _ string) (time.Duration, error) { return 0, nil }

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (e *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type recordApplier struct {
	mu   sync.Mutex
	incs []downloads.Increment
}

func (a *recordApplier) Apply(_ context.Context, inc downloads.Increment) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.incs = append(a.incs, inc)
	return nil
}

func (a *recordApplier) all() []downloads.Increment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]downloads.Increment(nil), a.incs...)
}

// =====================================================
// FIXTURE
// =====================================================

const testQuotaMB = 100

type fixture struct {
	svc      ServiceInterface
	mods     *fakeModRepo
	variants *fakeVariantRepo
	blobs    *fakeBlobs
	cache    *fakeCache
	tasks    *fakeEnqueuer
	counter  *downloads.Counter
	applied  *recordApplier
	engine   *crypto.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithKey(t, strings.Repeat("a1", 32))
}

func newFixtureWithKey(t *testing.T, hexKey string) *fixture {
	t.Helper()

	engine, err := crypto.NewEngine(hexKey)
	require.NoError(t, err)

	applied := &recordApplier{}
	counter := downloads.NewCounter(applied)
	t.Cleanup(counter.Close)

	mods := newFakeModRepo()
	variants := newFakeVariantRepo()
	blobs := newFakeBlobs()
	cacheClient := newFakeCache()
	tasks := &fakeEnqueuer{}

	policy := upload.Policy{
		MaxSize:           1 << 20,
		AllowedExtensions: []string{".zip", ".jar"},
	}
	icons := storage.NewIconProcessor(5 << 20)

	return &fixture{
		svc:      NewModService(mods, variants, blobs, engine, policy, icons, counter, cacheClient, tasks, testQuotaMB),
		mods:     mods,
		variants: variants,
		blobs:    blobs,
		cache:    cacheClient,
		tasks:    tasks,
		counter:  counter,
		applied:  applied,
		engine:   engine,
	}
}

var (
	owner    = &authz.Requester{CustomerID: "cust_1", Email: "owner@example.com"}
	stranger = &authz.Requester{CustomerID: "cust_2", Email: "other@example.com"}
	admin    = &authz.Requester{CustomerID: "cust_9", Email: "admin@example.com", IsAdmin: true}
)

func (f *fixture) encrypt(t *testing.T, plaintext []byte) []byte {
	t.Helper()

	blob, err := f.engine.Encrypt(plaintext, crypto.FormatV5)
	require.NoError(t, err)
	return blob
}

func (f *fixture) encryptedFile(t *testing.T, plaintext []byte) upload.File {
	t.Helper()

	return upload.File{Name: "pack.zip", ContentType: "application/zip", Data: f.encrypt(t, plaintext)}
}

func (f *fixture) createMod(t *testing.T, title string) *model.Mod {
	t.Helper()

	mod, err := f.svc.CreateMod(context.Background(), owner, model.CreateModRequest{
		Title:    title,
		Category: "themes",
		Version:  "1.0.0",
	}, f.encryptedFile(t, []byte("payload of "+title)))
	require.NoError(t, err)
	return mod
}

func (f *fixture) uploadVersion(t *testing.T, mod *model.Mod, semver string, plaintext []byte) *model.ModVersion {
	t.Helper()

	version, err := f.svc.UploadVersion(context.Background(), owner, mod.ModID,
		upload.File{Name: "pack.zip", ContentType: "application/zip", Data: f.encrypt(t, plaintext)},
		model.VersionMetadata{Version: semver},
	)
	require.NoError(t, err)
	return version
}

func requireModErrCode(t *testing.T, err error, code string) {
	t.Helper()

	var merr *model.ModError
	require.ErrorAs(t, err, &merr)
	require.Equal(t, code, merr.Code)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	return buf.Bytes()
}

func strPtr(s string) *string { return &s }

// =====================================================
// CREATE MOD
// =====================================================

func TestCreateMod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plaintext := []byte("initial artifact")
	mod, err := f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Title:       "Dark Theme Pack",
		Description: "A darker look",
		Category:    "themes",
		Version:     "1.0.0",
		Changelog:   "first release",
	}, f.encryptedFile(t, plaintext))
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(mod.ModID, "mod_"))
	require.Equal(t, "dark-theme-pack", mod.Slug)
	require.Equal(t, owner.CustomerID, mod.CustomerID)
	require.Equal(t, model.StatusPublished, mod.Status)
	require.Equal(t, authz.VisibilityPublic, mod.Visibility)
	require.Equal(t, "1.0.0", mod.LatestVersion)
	require.NotNil(t, mod.Variants)
	require.Empty(t, mod.Variants)

	// The initial version record exists and owns the stored blob
	versions, err := f.mods.ListVersions(ctx, owner.CustomerID, mod.ModID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "1.0.0", versions[0].Version)
	require.Equal(t, "first release", versions[0].Changelog)
	require.Equal(t, int64(len(plaintext)), versions[0].FileSize)
	require.Equal(t, crypto.Sha256Hex(plaintext), versions[0].SHA256)

	blob, meta, err := f.blobs.Download(ctx, versions[0].BlobKey)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, blob) // ciphertext stored untouched
	require.True(t, meta.Encrypted)

	// Listing caches are flushed so the new mod shows up
	require.Contains(t, f.cache.patterns, shared.CacheKeyModListPattern)
}

func TestCreateModExplicitSlugAndVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod, err := f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Title:      "Hidden Gem",
		Slug:       "my-hidden-gem",
		Category:   "tools",
		Visibility: authz.VisibilityPrivate,
	}, f.encryptedFile(t, []byte("secret")))
	require.NoError(t, err)

	require.Equal(t, "my-hidden-gem", mod.Slug)
	require.Equal(t, authz.VisibilityPrivate, mod.Visibility)

	// No version named in the request defaults the first one
	require.Equal(t, "1.0.0", mod.LatestVersion)
}

func TestCreateModSlugConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createMod(t, "Same Name")

	_, err := f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Title:    "Same Name",
		Category: "themes",
	}, f.encryptedFile(t, []byte("second")))
	requireModErrCode(t, err, model.ErrCodeSlugTaken)

	// The original keeps its claim
	got, err := f.svc.GetModBySlug(ctx, nil, "same-name")
	require.NoError(t, err)
	require.Equal(t, first.ModID, got.ModID)
}

func TestCreateModRejectsPlaintext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Title:    "Plain Pack",
		Category: "themes",
	}, upload.File{Name: "pack.zip", ContentType: "application/zip", Data: []byte("PK\x03\x04 not encrypted")})
	requireModErrCode(t, err, model.ErrCodeNotEncrypted)

	// Nothing should have been stored
	require.Empty(t, f.blobs.objects)
	require.Empty(t, f.mods.mods)
}

func TestCreateModRejectsLegacyFormat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	legacy := append([]byte{3}, bytes.Repeat([]byte{0x42}, 64)...)
	_, err := f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Title:    "Old Pack",
		Category: "themes",
	}, upload.File{Name: "pack.zip", ContentType: "application/zip", Data: legacy})
	requireModErrCode(t, err, model.ErrCodeLegacyFormat)
}

func TestCreateModPolicyLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Title:    "Wrong Type",
		Category: "themes",
	}, upload.File{Name: "payload.exe", Data: f.encrypt(t, []byte("x"))})
	requireModErrCode(t, err, model.ErrCodeInvalidInput)

	oversized := bytes.Repeat([]byte{0xAA}, (1<<20)+1)
	_, err = f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Title:    "Too Big",
		Category: "themes",
	}, upload.File{Name: "pack.zip", Data: oversized})
	requireModErrCode(t, err, model.ErrCodeInvalidInput)
}

func TestCreateModInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Category: "themes", // no title
	}, f.encryptedFile(t, []byte("x")))
	requireModErrCode(t, err, model.ErrCodeInvalidInput)
}

func TestCreateModRequiresAuthentication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateMod(ctx, nil, model.CreateModRequest{
		Title:    "Anonymous Pack",
		Category: "themes",
	}, f.encryptedFile(t, []byte("x")))
	requireModErrCode(t, err, model.ErrCodeForbidden)
}

func TestCreateModWithoutEncryptionKey(t *testing.T) {
	f := newFixtureWithKey(t, "")
	ctx := context.Background()

	_, err := f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Title:    "No Key",
		Category: "themes",
	}, upload.File{Name: "pack.zip", Data: []byte{5, 1, 2, 3}})
	requireModErrCode(t, err, model.ErrCodeKeyNotConfigured)
}

// =====================================================
// READS
// =====================================================

func TestGetModServesFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Cached Pack")

	// First read fills the cache
	got, err := f.svc.GetMod(ctx, nil, mod.ModID)
	require.NoError(t, err)
	require.Equal(t, "Cached Pack", got.Title)

	// Drop the record entirely; a cached read must not notice
	delete(f.mods.mods, mod.ModID)

	got, err = f.svc.GetMod(ctx, nil, mod.ModID)
	require.NoError(t, err)
	require.Equal(t, "Cached Pack", got.Title)
}

func TestGetModHidesPrivateFromStrangers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod, err := f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Title:      "Private Pack",
		Category:   "themes",
		Visibility: authz.VisibilityPrivate,
	}, f.encryptedFile(t, []byte("secret")))
	require.NoError(t, err)

	// The owner's read fills the cache; visibility must still hold
	// for everyone after it
	got, err := f.svc.GetMod(ctx, owner, mod.ModID)
	require.NoError(t, err)
	require.Equal(t, mod.ModID, got.ModID)

	_, err = f.svc.GetMod(ctx, stranger, mod.ModID)
	requireModErrCode(t, err, model.ErrCodeModNotFound)

	_, err = f.svc.GetMod(ctx, nil, mod.ModID)
	requireModErrCode(t, err, model.ErrCodeModNotFound)

	_, err = f.svc.GetMod(ctx, admin, mod.ModID)
	require.NoError(t, err)
}

func TestGetModBySlug(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Slugged Pack")

	got, err := f.svc.GetModBySlug(ctx, nil, "slugged-pack")
	require.NoError(t, err)
	require.Equal(t, mod.ModID, got.ModID)

	_, err = f.svc.GetModBySlug(ctx, nil, "no-such-slug")
	requireModErrCode(t, err, model.ErrCodeModNotFound)
}

func TestListPublicFiltersVisibilityAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	themed := f.createMod(t, "Public Theme")

	tooled, err := f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Title:    "Public Tool",
		Category: "tools",
	}, f.encryptedFile(t, []byte("tool")))
	require.NoError(t, err)

	_, err = f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Title:      "Secret Theme",
		Category:   "themes",
		Visibility: authz.VisibilityPrivate,
	}, f.encryptedFile(t, []byte("secret")))
	require.NoError(t, err)

	archived := f.createMod(t, "Archived Theme")
	_, err = f.svc.UpdateMod(ctx, owner, archived.ModID, model.UpdateModRequest{
		Status: strPtr(model.StatusArchived),
	})
	require.NoError(t, err)

	all, err := f.svc.ListPublic(ctx, "")
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, s := range all {
		ids = append(ids, s.ModID)
	}
	require.ElementsMatch(t, []string{themed.ModID, tooled.ModID}, ids)

	themes, err := f.svc.ListPublic(ctx, "themes")
	require.NoError(t, err)
	require.Len(t, themes, 1)
	require.Equal(t, themed.ModID, themes[0].ModID)
}

func TestListPublicServesFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMod(t, "Listed Pack")

	first, err := f.svc.ListPublic(ctx, "")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Wipe the repository; the cached listing must still answer
	f.mods.mods = map[string]*model.Mod{}

	second, err := f.svc.ListPublic(ctx, "")
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, first[0].ModID, second[0].ModID)
}

func TestListMine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMod(t, "My Pack")
	_, err := f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Title:      "My Secret",
		Category:   "themes",
		Visibility: authz.VisibilityPrivate,
	}, f.encryptedFile(t, []byte("secret")))
	require.NoError(t, err)

	summaries, err := f.svc.ListMine(ctx, owner)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Another customer sees none of them
	others, err := f.svc.ListMine(ctx, stranger)
	require.NoError(t, err)
	require.NotNil(t, others)
	require.Empty(t, others)

	_, err = f.svc.ListMine(ctx, nil)
	requireModErrCode(t, err, model.ErrCodeForbidden)
}

// =====================================================
// UPDATE MOD
// =====================================================

func TestUpdateMod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Original Title")

	updated, err := f.svc.UpdateMod(ctx, owner, mod.ModID, model.UpdateModRequest{
		Title:       strPtr("New Title"),
		Description: strPtr("now with description"),
		Category:    strPtr("tools"),
		Visibility:  strPtr(authz.VisibilityUnlisted),
	})
	require.NoError(t, err)

	require.Equal(t, "New Title", updated.Title)
	require.Equal(t, "now with description", updated.Description)
	require.Equal(t, "tools", updated.Category)
	require.Equal(t, authz.VisibilityUnlisted, updated.Visibility)
	require.Equal(t, mod.Slug, updated.Slug) // untouched without a slug change

	require.Contains(t, f.cache.deleted, shared.CacheKeyModDetail(mod.ModID))
	require.Contains(t, f.cache.patterns, shared.CacheKeyModListPattern)
}

func TestUpdateModSlugChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Alpha")

	updated, err := f.svc.UpdateMod(ctx, owner, mod.ModID, model.UpdateModRequest{
		Slug: strPtr("beta"),
	})
	require.NoError(t, err)
	require.Equal(t, "beta", updated.Slug)

	got, err := f.svc.GetModBySlug(ctx, nil, "beta")
	require.NoError(t, err)
	require.Equal(t, mod.ModID, got.ModID)

	// The old slug is released and free to claim again
	_, err = f.svc.GetModBySlug(ctx, nil, "alpha")
	requireModErrCode(t, err, model.ErrCodeModNotFound)

	second := f.createMod(t, "Alpha")

	// And a rename onto a taken slug conflicts
	_, err = f.svc.UpdateMod(ctx, owner, second.ModID, model.UpdateModRequest{
		Slug: strPtr("beta"),
	})
	requireModErrCode(t, err, model.ErrCodeSlugTaken)
}

func TestUpdateModOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Guarded Pack")

	_, err := f.svc.UpdateMod(ctx, stranger, mod.ModID, model.UpdateModRequest{
		Title: strPtr("Hijacked"),
	})
	requireModErrCode(t, err, model.ErrCodeForbidden)

	_, err = f.svc.UpdateMod(ctx, admin, mod.ModID, model.UpdateModRequest{
		Title: strPtr("Moderated"),
	})
	require.NoError(t, err)
}

// =====================================================
// DELETE MOD
// =====================================================

func TestDeleteModCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Cascade Pack")
	f.uploadVersion(t, mod, "2.0.0", []byte("second artifact"))

	// A variant with one uploaded version, mirrored onto the mod
	versions, err := f.mods.ListVersions(ctx, owner.CustomerID, mod.ModID)
	require.NoError(t, err)

	variant := &variantmodel.Variant{
		VariantID:       "var_cascade",
		ModID:           mod.ModID,
		ParentVersionID: versions[0].VersionID,
		Name:            "HD Edition",
	}
	require.NoError(t, f.variants.Save(ctx, owner.CustomerID, variant))

	variantVersion := &variantmodel.VariantVersion{
		VariantVersionID: "vv_cascade",
		VariantID:        variant.VariantID,
		ModID:            mod.ModID,
		Version:          "1.0.0",
		BlobKey:          storage.VariantVersionKey(owner.CustomerID, mod.ModID, variant.VariantID, "vv_cascade", ".zip"),
	}
	require.NoError(t, f.variants.SaveVersion(ctx, owner.CustomerID, variantVersion))
	require.NoError(t, f.blobs.Upload(ctx, variantVersion.BlobKey, []byte("variant blob"), "application/octet-stream", nil))

	stored, err := f.mods.Find(ctx, mod.ModID)
	require.NoError(t, err)
	stored.UpsertVariant(*variant)
	require.NoError(t, f.mods.Save(ctx, stored))

	// An icon too; the prefix delete must take it with everything else
	iconKey := storage.ModIconOriginalKey(owner.CustomerID, mod.ModID)
	require.NoError(t, f.blobs.Upload(ctx, iconKey, pngBytes(t), "image/png", nil))

	require.NoError(t, f.svc.DeleteMod(ctx, owner, mod.ModID))

	require.Empty(t, f.mods.mods)
	require.Empty(t, f.mods.versions)
	require.Empty(t, f.mods.index)
	require.Empty(t, f.variants.variants)
	require.Empty(t, f.variants.versions)
	require.Empty(t, f.variants.index)
	require.Empty(t, f.blobs.objects)

	// The slug is free again
	recreated := f.createMod(t, "Cascade Pack")
	require.Equal(t, "cascade-pack", recreated.Slug)
}

func TestDeleteModOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Sturdy Pack")

	err := f.svc.DeleteMod(ctx, stranger, mod.ModID)
	requireModErrCode(t, err, model.ErrCodeForbidden)

	// Still fully intact
	_, err = f.mods.Find(ctx, mod.ModID)
	require.NoError(t, err)
}

// =====================================================
// VERSIONS
// =====================================================

func TestUploadVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Versioned Pack")

	plaintext := []byte("the second artifact, slightly longer")
	version, err := f.svc.UploadVersion(ctx, owner, mod.ModID,
		upload.File{Name: "update.zip", ContentType: "application/zip", Data: f.encrypt(t, plaintext)},
		model.VersionMetadata{Version: "1.1.0", Changelog: "fixes"},
	)
	require.NoError(t, err)

	require.Equal(t, "1.1.0", version.Version)
	require.Equal(t, int64(len(plaintext)), version.FileSize)
	require.Equal(t, crypto.Sha256Hex(plaintext), version.SHA256)

	// Newest first, and latestVersion follows the upload
	listed, err := f.svc.ListVersions(ctx, nil, mod.ModID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "1.1.0", listed[0].Version)
	require.Equal(t, "1.0.0", listed[1].Version)

	stored, err := f.mods.Find(ctx, mod.ModID)
	require.NoError(t, err)
	require.Equal(t, "1.1.0", stored.LatestVersion)
}

func TestUploadVersionOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Owned Pack")

	_, err := f.svc.UploadVersion(ctx, stranger, mod.ModID,
		upload.File{Name: "pack.zip", Data: f.encrypt(t, []byte("x"))},
		model.VersionMetadata{Version: "9.9.9"},
	)
	requireModErrCode(t, err, model.ErrCodeForbidden)
}

// =====================================================
// DOWNLOADS
// =====================================================

func TestDownloadLatest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Download Pack")
	f.uploadVersion(t, mod, "2.0.0", []byte("newest artifact"))

	// Anonymous is fine for a public mod
	payload, err := f.svc.DownloadLatest(ctx, nil, mod.ModID)
	require.NoError(t, err)
	require.Equal(t, []byte("newest artifact"), payload.Data)
	require.Equal(t, "pack.zip", payload.FileName)
	require.Equal(t, "application/zip", payload.ContentType)

	// Exactly one increment, attributed to the newest version
	f.counter.Close()
	incs := f.applied.all()
	require.Len(t, incs, 1)
	require.Equal(t, mod.ModID, incs[0].ModID)
	require.NotEmpty(t, incs[0].VersionID)
	require.Empty(t, incs[0].VariantID)
}

func TestDownloadSpecificVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Pinned Pack")
	f.uploadVersion(t, mod, "2.0.0", []byte("new"))

	versions, err := f.svc.ListVersions(ctx, nil, mod.ModID)
	require.NoError(t, err)
	oldest := versions[len(versions)-1]

	payload, err := f.svc.DownloadVersion(ctx, nil, mod.ModID, oldest.VersionID)
	require.NoError(t, err)
	require.Equal(t, []byte("payload of Pinned Pack"), payload.Data)
}

func TestDownloadVersionFromAnotherMod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	modA := f.createMod(t, "Pack A")
	modB := f.createMod(t, "Pack B")

	versionsB, err := f.svc.ListVersions(ctx, nil, modB.ModID)
	require.NoError(t, err)

	// modB's version is not reachable through modA's path
	_, err = f.svc.DownloadVersion(ctx, nil, modA.ModID, versionsB[0].VersionID)
	requireModErrCode(t, err, model.ErrCodeVersionNotFound)
}

func TestDownloadMissingBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Hollow Pack")

	versions, err := f.svc.ListVersions(ctx, nil, mod.ModID)
	require.NoError(t, err)
	require.NoError(t, f.blobs.Delete(ctx, versions[0].BlobKey))

	_, err = f.svc.DownloadLatest(ctx, nil, mod.ModID)
	requireModErrCode(t, err, model.ErrCodeFileNotFound)
}

func TestDownloadCorruptBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Mangled Pack")

	versions, err := f.svc.ListVersions(ctx, nil, mod.ModID)
	require.NoError(t, err)

	blob := f.blobs.objects[versions[0].BlobKey]
	blob[len(blob)-1] ^= 0xFF

	_, err = f.svc.DownloadLatest(ctx, nil, mod.ModID)
	requireModErrCode(t, err, model.ErrCodeCorruptServerData)
}

func TestDownloadPrivateModHidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod, err := f.svc.CreateMod(ctx, owner, model.CreateModRequest{
		Title:      "Private Download",
		Category:   "themes",
		Visibility: authz.VisibilityPrivate,
	}, f.encryptedFile(t, []byte("secret")))
	require.NoError(t, err)

	_, err = f.svc.DownloadLatest(ctx, stranger, mod.ModID)
	requireModErrCode(t, err, model.ErrCodeModNotFound)

	payload, err := f.svc.DownloadLatest(ctx, owner, mod.ModID)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), payload.Data)
}

// =====================================================
// ICON
// =====================================================

func TestUploadIcon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Pictured Pack")

	icon := pngBytes(t)
	updated, err := f.svc.UploadIcon(ctx, owner, mod.ModID, upload.File{
		Name:        "icon.png",
		ContentType: "image/png",
		Data:        icon,
	})
	require.NoError(t, err)

	require.NotNil(t, updated.Icon)
	require.True(t, updated.Icon.Uploaded)

	// The original is stored as-is, unencrypted
	stored, _, err := f.blobs.Download(ctx, storage.ModIconOriginalKey(owner.CustomerID, mod.ModID))
	require.NoError(t, err)
	require.Equal(t, icon, stored)

	// And the resize job is queued with the right coordinates
	require.Len(t, f.tasks.tasks, 1)
	require.Equal(t, shared.TypeProcessModIcon, f.tasks.tasks[0].Type())

	var payload shared.ProcessModIconPayload
	require.NoError(t, json.Unmarshal(f.tasks.tasks[0].Payload(), &payload))
	require.Equal(t, mod.ModID, payload.ModID)
	require.Equal(t, owner.CustomerID, payload.Scope)
}

func TestUploadIconRejectsNonImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "No Picture Pack")

	_, err := f.svc.UploadIcon(ctx, owner, mod.ModID, upload.File{
		Name: "icon.png",
		Data: []byte("definitely not an image"),
	})
	requireModErrCode(t, err, model.ErrCodeInvalidIcon)

	require.Empty(t, f.tasks.tasks)
}

func TestUploadIconOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mod := f.createMod(t, "Guarded Picture")

	_, err := f.svc.UploadIcon(ctx, stranger, mod.ModID, upload.File{
		Name: "icon.png",
		Data: pngBytes(t),
	})
	requireModErrCode(t, err, model.ErrCodeForbidden)
}

// =====================================================
// STORAGE USAGE
// =====================================================

func TestUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	modA := f.createMod(t, "Usage A")
	modB := f.createMod(t, "Usage B")
	f.uploadVersion(t, modB, "2.0.0", []byte("more bytes for B"))

	var wantTotal int64
	for _, data := range f.blobs.objects {
		wantTotal += int64(len(data))
	}

	report, err := f.svc.Usage(ctx, owner)
	require.NoError(t, err)

	require.Equal(t, owner.CustomerID, report.CustomerID)
	require.Equal(t, 2, report.ModCount)
	require.Equal(t, 3, report.FileCount)
	require.Equal(t, wantTotal, report.TotalBytes)
	require.True(t, report.TotalMB.Equal(bytesToMegabytes(wantTotal)))
	require.True(t, report.QuotaMB.Equal(decimal.NewFromInt(testQuotaMB)))

	wantPercent := bytesToMegabytes(wantTotal).
		Div(decimal.NewFromInt(testQuotaMB)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	require.True(t, report.PercentUsed.Equal(wantPercent))
	require.NotEmpty(t, report.HumanTotal)

	require.Len(t, report.Mods, 2)
	byID := map[string]model.ModUsage{}
	for _, usage := range report.Mods {
		byID[usage.ModID] = usage
	}
	require.Equal(t, 1, byID[modA.ModID].FileCount)
	require.Equal(t, 2, byID[modB.ModID].FileCount)
}

func TestUsageRequiresAuthentication(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Usage(context.Background(), nil)
	requireModErrCode(t, err, model.ErrCodeForbidden)
}

// =====================================================
// ADMIN EXPORT
// =====================================================

func TestAdminExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	modA := f.createMod(t, "Export A")
	modB := f.createMod(t, "Export B")

	wb, err := f.svc.AdminExport(ctx)
	require.NoError(t, err)

	header, err := wb.GetCellValue("Mods", "A1")
	require.NoError(t, err)
	require.Equal(t, "Mod ID", header)

	a2, err := wb.GetCellValue("Mods", "A2")
	require.NoError(t, err)
	a3, err := wb.GetCellValue("Mods", "A3")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{modA.ModID, modB.ModID}, []string{a2, a3})
}
