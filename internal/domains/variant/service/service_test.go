package service

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/downloads"
	modmodel "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/model"
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

type fakeVariantRepo struct {
	variants map[string]*model.Variant
	versions map[string]*model.VariantVersion
	index    map[string][]string // variantID -> version ids, newest first
}

func newFakeVariantRepo() *fakeVariantRepo {
	return &fakeVariantRepo{
		variants: make(map[string]*model.Variant),
		versions: make(map[string]*model.VariantVersion),
		index:    make(map[string][]string),
	}
}

func scopedKey(scope, id string) string { return scope + "/" + id }

func (r *fakeVariantRepo) Get(_ context.Context, scope, variantID string) (*model.Variant, error) {
	v, ok := r.variants[scopedKey(scope, variantID)]
	if !ok {
		return nil, model.ErrVariantNotFound
	}
	out := *v
	return &out, nil
}

func (r *fakeVariantRepo) Save(_ context.Context, scope string, variant *model.Variant) error {
	v := *variant
	r.variants[scopedKey(scope, variant.VariantID)] = &v
	return nil
}

func (r *fakeVariantRepo) Delete(_ context.Context, scope, variantID string) error {
	delete(r.variants, scopedKey(scope, variantID))
	return nil
}

func (r *fakeVariantRepo) GetVersion(_ context.Context, scope, variantVersionID string) (*model.VariantVersion, error) {
	v, ok := r.versions[scopedKey(scope, variantVersionID)]
	if !ok {
		return nil, model.ErrVersionNotFound
	}
	out := *v
	return &out, nil
}

func (r *fakeVariantRepo) SaveVersion(_ context.Context, scope string, version *model.VariantVersion) error {
	v := *version
	r.versions[scopedKey(scope, version.VariantVersionID)] = &v
	r.index[version.VariantID] = append([]string{version.VariantVersionID}, r.index[version.VariantID]...)
	return nil
}

func (r *fakeVariantRepo) UpdateVersion(_ context.Context, scope string, version *model.VariantVersion) error {
	v := *version
	r.versions[scopedKey(scope, version.VariantVersionID)] = &v
	return nil
}

func (r *fakeVariantRepo) DeleteVersion(_ context.Context, scope string, version *model.VariantVersion) error {
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

func (r *fakeVariantRepo) ListVersions(ctx context.Context, scope, variantID string) ([]model.VariantVersion, error) {
	versions := make([]model.VariantVersion, 0, len(r.index[variantID]))
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

func (r *fakeVariantRepo) AllVersions(_ context.Context) ([]model.VariantVersion, error) {
	versions := make([]model.VariantVersion, 0, len(r.versions))
	for _, v := range r.versions {
		versions = append(versions, *v)
	}
	return versions, nil
}

type fakeModRepo struct {
	mods     map[string]*modmodel.Mod
	versions map[string]*modmodel.ModVersion
	index    map[string][]string // modID -> version ids, newest first
}

func newFakeModRepo() *fakeModRepo {
	return &fakeModRepo{
		mods:     make(map[string]*modmodel.Mod),
		versions: make(map[string]*modmodel.ModVersion),
		index:    make(map[string][]string),
	}
}

func (r *fakeModRepo) Get(_ context.Context, scope, modID string) (*modmodel.Mod, error) {
	m, ok := r.mods[modID]
	if !ok || m.CustomerID != scope {
		return nil, modmodel.ErrModNotFound
	}
	out := *m
	return &out, nil
}

func (r *fakeModRepo) Find(_ context.Context, modID string) (*modmodel.Mod, error) {
	m, ok := r.mods[modID]
	if !ok {
		return nil, modmodel.ErrModNotFound
	}
	out := *m
	return &out, nil
}

func (r *fakeModRepo) FindBySlug(_ context.Context, slug string) (*modmodel.Mod, error) {
	for _, m := range r.mods {
		if m.Slug == slug {
			out := *m
			return &out, nil
		}
	}
	return nil, modmodel.ErrModNotFound
}

func (r *fakeModRepo) Save(_ context.Context, mod *modmodel.Mod) error {
	m := *mod
	r.mods[mod.ModID] = &m
	return nil
}

func (r *fakeModRepo) Delete(_ context.Context, mod *modmodel.Mod) error {
	delete(r.mods, mod.ModID)
	return nil
}

func (r *fakeModRepo) ClaimSlug(_ context.Context, _, _, _ string) error { return nil }

func (r *fakeModRepo) ReleaseSlug(_ context.Context, _ string) error { return nil }

func (r *fakeModRepo) ListPublicByCategory(_ context.Context, _ string) ([]kv.ModSummary, error) {
	return nil, nil
}
func (r *fakeModRepo) ListByCustomer(_ context.Context, _ string) ([]kv.ModSummary, error) {
	return nil, nil
}
func (r *fakeModRepo) ListAllSummaries(_ context.Context) ([]kv.ModSummary, error) {
	return nil, nil
}

func (r *fakeModRepo) AllMods(_ context.Context) ([]modmodel.Mod, error) {
	mods := make([]modmodel.Mod, 0, len(r.mods))
	for _, m := range r.mods {
		mods = append(mods, *m)
	}
	return mods, nil
}

func (r *fakeModRepo) GetVersion(_ context.Context, scope, versionID string) (*modmodel.ModVersion, error) {
	v, ok := r.versions[scopedKey(scope, versionID)]
	if !ok {
		return nil, modmodel.ErrVersionNotFound
	}
	out := *v
	return &out, nil
}

func (r *fakeModRepo) SaveVersion(_ context.Context, scope string, version *modmodel.ModVersion) error {
	v := *version
	r.versions[scopedKey(scope, version.VersionID)] = &v
	r.index[version.ModID] = append([]string{version.VersionID}, r.index[version.ModID]...)
	return nil
}

func (r *fakeModRepo) UpdateVersion(_ context.Context, scope string, version *modmodel.ModVersion) error {
	v := *version
	r.versions[scopedKey(scope, version.VersionID)] = &v
	return nil
}

func (r *fakeModRepo) DeleteVersion(_ context.Context, scope string, version *modmodel.ModVersion) error {
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

func (r *fakeModRepo) ListVersions(ctx context.Context, scope, modID string) ([]modmodel.ModVersion, error) {
	versions := make([]modmodel.ModVersion, 0, len(r.index[modID]))
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

func (r *fakeModRepo) AllVersions(_ context.Context) ([]modmodel.ModVersion, error) {
	versions := make([]modmodel.ModVersion, 0, len(r.versions))
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

type fakeCache struct {
	deleted []string
}

func (c *fakeCache) Get(_ context.Context, _ string, _ interface{}) (bool, error) {
	return false, nil
}

func (c *fakeCache) Set(_ context.Context, _ string, _ interface{}, _ time.Duration) error {
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.deleted = append(c.deleted, keys...)
	return nil
}

func (c *fakeCache) Ping(_ context.Context) error { return nil }

func (c *fakeCache) DeletePattern(_ context.Context, _ string) error { return nil }

func (c *fakeCache) Increment(_ context.Context, _ string) (int64, error) { return 0, nil }

func (c *fakeCache) Exists(_ context.Context, _ string) (bool, error) { return false, nil }

func (c *fakeCache) Expire(_ context.Context, _ string, _ time.Duration) error { return nil }

func (c *fakeCache) TTL(_ context.Context, _ string) (time.Duration, error) { return 0, nil }

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

type fixture struct {
	svc      ServiceInterface
	variants *fakeVariantRepo
	mods     *fakeModRepo
	blobs    *fakeBlobs
	cache    *fakeCache
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

	variants := newFakeVariantRepo()
	mods := newFakeModRepo()
	blobs := newFakeBlobs()
	cacheClient := &fakeCache{}

	policy := upload.Policy{
		MaxSize:           1 << 20,
		AllowedExtensions: []string{".zip", ".jar"},
	}

	return &fixture{
		svc:      NewVariantService(variants, mods, blobs, engine, policy, counter, cacheClient),
		variants: variants,
		mods:     mods,
		blobs:    blobs,
		cache:    cacheClient,
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

// seedMod stores a mod owned by cust_1 with one uploaded version that
// can serve as a variant parent
func (f *fixture) seedMod(t *testing.T, visibility string) (*modmodel.Mod, *modmodel.ModVersion) {
	t.Helper()

	now := time.Now()
	mod := &modmodel.Mod{
		ModID:      "mod_seed",
		Slug:       "seed-mod",
		CustomerID: owner.CustomerID,
		AuthorID:   owner.CustomerID,
		Title:      "Seed Mod",
		Category:   "gameplay",
		Visibility: visibility,
		Status:     modmodel.StatusPublished,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, f.mods.Save(context.Background(), mod))

	version := &modmodel.ModVersion{
		VersionID: "ver_parent",
		ModID:     mod.ModID,
		Version:   "1.0.0",
		FileName:  "seed.zip",
		CreatedAt: now,
	}
	require.NoError(t, f.mods.SaveVersion(context.Background(), mod.CustomerID, version))

	return mod, version
}

func (f *fixture) createVariant(t *testing.T, mod *modmodel.Mod, parent *modmodel.ModVersion) *model.Variant {
	t.Helper()

	variant, err := f.svc.CreateVariant(context.Background(), owner, mod.ModID, model.CreateVariantRequest{
		Name:            "Enhanced Edition",
		ParentVersionID: parent.VersionID,
	})
	require.NoError(t, err)
	return variant
}

func (f *fixture) encrypt(t *testing.T, plaintext []byte) []byte {
	t.Helper()

	blob, err := f.engine.Encrypt(plaintext, crypto.FormatV5)
	require.NoError(t, err)
	return blob
}

func (f *fixture) uploadVersion(t *testing.T, mod *modmodel.Mod, variant *model.Variant, semver string, plaintext []byte) *model.VariantVersion {
	t.Helper()

	version, err := f.svc.UploadVersion(context.Background(), owner, mod.ModID, variant.VariantID,
		upload.File{Name: "pack.zip", ContentType: "application/zip", Data: f.encrypt(t, plaintext)},
		model.UploadVersionMetadata{Version: semver},
	)
	require.NoError(t, err)
	return version
}

func requireVariantErrCode(t *testing.T, err error, code string) {
	t.Helper()

	var verr *model.VariantError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, code, verr.Code)
}

// =====================================================
// CREATE VARIANT
// =====================================================

func TestCreateVariant(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)

	variant := f.createVariant(t, mod, parent)

	require.NotEmpty(t, variant.VariantID)
	require.Equal(t, mod.ModID, variant.ModID)
	require.Equal(t, parent.VersionID, variant.ParentVersionID)
	require.Nil(t, variant.CurrentVersionID)
	require.Equal(t, 0, variant.VersionCount)

	// The mod record carries a snapshot of the new variant
	stored, err := f.mods.Find(context.Background(), mod.ModID)
	require.NoError(t, err)
	require.Len(t, stored.Variants, 1)
	require.Equal(t, variant.VariantID, stored.Variants[0].VariantID)

	// Mutations drop the cached detail
	require.Contains(t, f.cache.deleted, shared.CacheKeyModDetail(mod.ModID))
}

func TestCreateVariantParentMustExist(t *testing.T) {
	f := newFixture(t)
	mod, _ := f.seedMod(t, authz.VisibilityPublic)

	_, err := f.svc.CreateVariant(context.Background(), owner, mod.ModID, model.CreateVariantRequest{
		Name:            "Enhanced Edition",
		ParentVersionID: "ver_missing",
	})
	requireVariantErrCode(t, err, model.ErrCodeParentVersion)
}

func TestCreateVariantParentMustBelongToMod(t *testing.T) {
	f := newFixture(t)
	mod, _ := f.seedMod(t, authz.VisibilityPublic)

	// A version that exists, but on a different mod in the same scope
	other := &modmodel.Mod{ModID: "mod_other", CustomerID: owner.CustomerID, Visibility: authz.VisibilityPublic}
	require.NoError(t, f.mods.Save(context.Background(), other))
	foreign := &modmodel.ModVersion{VersionID: "ver_foreign", ModID: other.ModID, Version: "1.0.0"}
	require.NoError(t, f.mods.SaveVersion(context.Background(), owner.CustomerID, foreign))

	_, err := f.svc.CreateVariant(context.Background(), owner, mod.ModID, model.CreateVariantRequest{
		Name:            "Enhanced Edition",
		ParentVersionID: foreign.VersionID,
	})
	requireVariantErrCode(t, err, model.ErrCodeParentVersion)
}

func TestCreateVariantOwnership(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)

	req := model.CreateVariantRequest{Name: "Enhanced Edition", ParentVersionID: parent.VersionID}

	// A non-owner who can see the mod gets a plain forbidden
	_, err := f.svc.CreateVariant(context.Background(), stranger, mod.ModID, req)
	requireVariantErrCode(t, err, model.ErrCodeForbidden)

	// Anonymous requesters are never owners
	_, err = f.svc.CreateVariant(context.Background(), nil, mod.ModID, req)
	requireVariantErrCode(t, err, model.ErrCodeForbidden)

	// Admins can modify anything
	_, err = f.svc.CreateVariant(context.Background(), admin, mod.ModID, req)
	require.NoError(t, err)
}

func TestPrivateModHiddenFromStrangers(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPrivate)

	// Mutations and reads by strangers both come back as not-found,
	// so a private mod's existence never leaks
	_, err := f.svc.CreateVariant(context.Background(), stranger, mod.ModID, model.CreateVariantRequest{
		Name:            "Enhanced Edition",
		ParentVersionID: parent.VersionID,
	})
	requireVariantErrCode(t, err, model.ErrCodeModNotFound)

	_, err = f.svc.ListVersions(context.Background(), stranger, mod.ModID, "var_whatever")
	requireVariantErrCode(t, err, model.ErrCodeModNotFound)

	_, err = f.svc.ListVersions(context.Background(), nil, mod.ModID, "var_whatever")
	requireVariantErrCode(t, err, model.ErrCodeModNotFound)

	// The owner still sees it
	variant := f.createVariant(t, mod, parent)
	versions, err := f.svc.ListVersions(context.Background(), owner, mod.ModID, variant.VariantID)
	require.NoError(t, err)
	require.Empty(t, versions)
}

// =====================================================
// UPLOAD VERSION
// =====================================================

func TestUploadVersion(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)

	plaintext := []byte("the real mod archive bytes")
	ciphertext := f.encrypt(t, plaintext)

	version, err := f.svc.UploadVersion(context.Background(), owner, mod.ModID, variant.VariantID,
		upload.File{Name: "pack.zip", ContentType: "application/zip", Data: ciphertext},
		model.UploadVersionMetadata{Version: "1.1.0", Changelog: "first variant build"},
	)
	require.NoError(t, err)

	// Size and digest describe the decrypted content
	require.Equal(t, int64(len(plaintext)), version.FileSize)
	require.Equal(t, crypto.Sha256Hex(plaintext), version.SHA256)
	require.Equal(t, "1.1.0", version.Version)

	// The blob is stored as the ciphertext that arrived, untouched
	stored, meta, err := f.blobs.Download(context.Background(), version.BlobKey)
	require.NoError(t, err)
	require.Equal(t, ciphertext, stored)
	require.True(t, meta.Encrypted)
	require.Equal(t, "v5", meta.EncryptionFormat)
	require.Equal(t, "pack.zip", meta.OriginalFileName)
	require.Equal(t, version.SHA256, meta.SHA256)

	// The variant moved forward
	got, err := f.variants.Get(context.Background(), mod.CustomerID, variant.VariantID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentVersionID)
	require.Equal(t, version.VariantVersionID, *got.CurrentVersionID)
	require.Equal(t, 1, got.VersionCount)

	// And the mod snapshot mirrors it
	storedMod, err := f.mods.Find(context.Background(), mod.ModID)
	require.NoError(t, err)
	snap := storedMod.FindVariant(variant.VariantID)
	require.NotNil(t, snap)
	require.Equal(t, 1, snap.VersionCount)
}

func TestUploadVersionMovesCurrentForward(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)

	v1 := f.uploadVersion(t, mod, variant, "1.0.0", []byte("first"))
	v2 := f.uploadVersion(t, mod, variant, "1.1.0", []byte("second"))

	got, err := f.variants.Get(context.Background(), mod.CustomerID, variant.VariantID)
	require.NoError(t, err)
	require.Equal(t, v2.VariantVersionID, *got.CurrentVersionID)
	require.Equal(t, 2, got.VersionCount)

	// Listing is newest first
	versions, err := f.svc.ListVersions(context.Background(), nil, mod.ModID, variant.VariantID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, v2.VariantVersionID, versions[0].VariantVersionID)
	require.Equal(t, v1.VariantVersionID, versions[1].VariantVersionID)
}

func TestUploadVersionRejectsPlaintext(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)

	_, err := f.svc.UploadVersion(context.Background(), owner, mod.ModID, variant.VariantID,
		upload.File{Name: "pack.zip", ContentType: "application/zip", Data: []byte("just plain bytes, no format tag")},
		model.UploadVersionMetadata{Version: "1.0.0"},
	)
	requireVariantErrCode(t, err, model.ErrCodeNotEncrypted)
}

func TestUploadVersionRejectsLegacyFormat(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)

	// Tag 3 is the retired token-derived scheme: recognized, refused
	legacy := append([]byte{3}, bytes.Repeat([]byte{0x42}, 64)...)

	_, err := f.svc.UploadVersion(context.Background(), owner, mod.ModID, variant.VariantID,
		upload.File{Name: "pack.zip", ContentType: "application/zip", Data: legacy},
		model.UploadVersionMetadata{Version: "1.0.0"},
	)
	requireVariantErrCode(t, err, model.ErrCodeLegacyFormat)
}

func TestUploadVersionPolicyLimits(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)

	// Extension not in the allow-list
	_, err := f.svc.UploadVersion(context.Background(), owner, mod.ModID, variant.VariantID,
		upload.File{Name: "pack.exe", ContentType: "application/zip", Data: f.encrypt(t, []byte("x"))},
		model.UploadVersionMetadata{Version: "1.0.0"},
	)
	requireVariantErrCode(t, err, model.ErrCodeInvalidInput)

	// Payload over the size limit
	oversized := bytes.Repeat([]byte{0}, (1<<20)+1)
	_, err = f.svc.UploadVersion(context.Background(), owner, mod.ModID, variant.VariantID,
		upload.File{Name: "pack.zip", ContentType: "application/zip", Data: oversized},
		model.UploadVersionMetadata{Version: "1.0.0"},
	)
	requireVariantErrCode(t, err, model.ErrCodeInvalidInput)

	// Metadata must carry a semantic version
	_, err = f.svc.UploadVersion(context.Background(), owner, mod.ModID, variant.VariantID,
		upload.File{Name: "pack.zip", ContentType: "application/zip", Data: f.encrypt(t, []byte("x"))},
		model.UploadVersionMetadata{Version: "not-a-version"},
	)
	requireVariantErrCode(t, err, model.ErrCodeInvalidInput)
}

func TestUploadVersionWithoutEncryptionKey(t *testing.T) {
	f := newFixtureWithKey(t, "")
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)

	_, err := f.svc.UploadVersion(context.Background(), owner, mod.ModID, variant.VariantID,
		upload.File{Name: "pack.zip", ContentType: "application/zip", Data: []byte{5, 1, 2, 3}},
		model.UploadVersionMetadata{Version: "1.0.0"},
	)
	requireVariantErrCode(t, err, model.ErrCodeKeyNotConfigured)
}

// =====================================================
// DOWNLOADS
// =====================================================

func TestDownloadCurrent(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)

	plaintext := []byte("decrypt me on the way out")
	version := f.uploadVersion(t, mod, variant, "1.0.0", plaintext)

	// Anonymous download of a public mod
	payload, err := f.svc.DownloadCurrent(context.Background(), nil, mod.ModID, variant.VariantID)
	require.NoError(t, err)
	require.Equal(t, plaintext, payload.Data)
	require.Equal(t, "pack.zip", payload.FileName)
	require.Equal(t, "application/zip", payload.ContentType)

	// The counter saw exactly this download
	f.counter.Close()
	incs := f.applied.all()
	require.Len(t, incs, 1)
	require.Equal(t, mod.ModID, incs[0].ModID)
	require.Equal(t, variant.VariantID, incs[0].VariantID)
	require.Equal(t, version.VariantVersionID, incs[0].VariantVersionID)
}

func TestDownloadCurrentWithoutUploads(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)

	_, err := f.svc.DownloadCurrent(context.Background(), nil, mod.ModID, variant.VariantID)
	requireVariantErrCode(t, err, model.ErrCodeVersionNotFound)
}

func TestDownloadSpecificVersion(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)

	first := []byte("older build")
	v1 := f.uploadVersion(t, mod, variant, "1.0.0", first)
	f.uploadVersion(t, mod, variant, "1.1.0", []byte("newer build"))

	payload, err := f.svc.DownloadVersion(context.Background(), nil, mod.ModID, variant.VariantID, v1.VariantVersionID)
	require.NoError(t, err)
	require.Equal(t, first, payload.Data)
}

func TestDownloadVersionFromAnotherVariant(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variantA := f.createVariant(t, mod, parent)

	variantB, err := f.svc.CreateVariant(context.Background(), owner, mod.ModID, model.CreateVariantRequest{
		Name:            "Lite Edition",
		ParentVersionID: parent.VersionID,
	})
	require.NoError(t, err)

	version := f.uploadVersion(t, mod, variantA, "1.0.0", []byte("belongs to A"))

	// A's version is not reachable through B's path
	_, err = f.svc.DownloadVersion(context.Background(), nil, mod.ModID, variantB.VariantID, version.VariantVersionID)
	requireVariantErrCode(t, err, model.ErrCodeVersionNotFound)
}

func TestDownloadMissingBlob(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)
	version := f.uploadVersion(t, mod, variant, "1.0.0", []byte("soon gone"))

	// Simulate a record whose blob has vanished
	require.NoError(t, f.blobs.Delete(context.Background(), version.BlobKey))

	_, err := f.svc.DownloadCurrent(context.Background(), nil, mod.ModID, variant.VariantID)
	requireVariantErrCode(t, err, model.ErrCodeFileNotFound)
}

func TestDownloadCorruptBlob(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)
	version := f.uploadVersion(t, mod, variant, "1.0.0", []byte("about to rot"))

	// Flip a ciphertext byte in place; GCM authentication must fail
	blob := f.blobs.objects[version.BlobKey]
	blob[len(blob)-1] ^= 0xFF

	_, err := f.svc.DownloadCurrent(context.Background(), nil, mod.ModID, variant.VariantID)
	requireVariantErrCode(t, err, model.ErrCodeCorruptServerData)
}

// =====================================================
// DELETE VERSION
// =====================================================

func TestDeleteVersionRepointsCurrent(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)

	v1 := f.uploadVersion(t, mod, variant, "1.0.0", []byte("one"))
	v2 := f.uploadVersion(t, mod, variant, "1.1.0", []byte("two"))
	v3 := f.uploadVersion(t, mod, variant, "1.2.0", []byte("three"))

	// Deleting the current version falls back to the newest remaining
	require.NoError(t, f.svc.DeleteVersion(context.Background(), owner, mod.ModID, variant.VariantID, v3.VariantVersionID))
	got, err := f.variants.Get(context.Background(), mod.CustomerID, variant.VariantID)
	require.NoError(t, err)
	require.Equal(t, v2.VariantVersionID, *got.CurrentVersionID)
	require.Equal(t, 2, got.VersionCount)

	// Deleting a non-current version leaves current alone
	require.NoError(t, f.svc.DeleteVersion(context.Background(), owner, mod.ModID, variant.VariantID, v1.VariantVersionID))
	got, err = f.variants.Get(context.Background(), mod.CustomerID, variant.VariantID)
	require.NoError(t, err)
	require.Equal(t, v2.VariantVersionID, *got.CurrentVersionID)
	require.Equal(t, 1, got.VersionCount)

	// Deleting the last version leaves the variant empty but alive
	require.NoError(t, f.svc.DeleteVersion(context.Background(), owner, mod.ModID, variant.VariantID, v2.VariantVersionID))
	got, err = f.variants.Get(context.Background(), mod.CustomerID, variant.VariantID)
	require.NoError(t, err)
	require.Nil(t, got.CurrentVersionID)
	require.Equal(t, 0, got.VersionCount)
}

func TestDeleteVersionRemovesBlob(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)
	version := f.uploadVersion(t, mod, variant, "1.0.0", []byte("bytes"))

	require.NoError(t, f.svc.DeleteVersion(context.Background(), owner, mod.ModID, variant.VariantID, version.VariantVersionID))

	_, _, err := f.blobs.Download(context.Background(), version.BlobKey)
	require.ErrorIs(t, err, storage.ErrBlobNotFound)
}

func TestDeleteVersionOwnership(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)
	version := f.uploadVersion(t, mod, variant, "1.0.0", []byte("bytes"))

	err := f.svc.DeleteVersion(context.Background(), stranger, mod.ModID, variant.VariantID, version.VariantVersionID)
	requireVariantErrCode(t, err, model.ErrCodeForbidden)

	// Still there
	_, err = f.variants.GetVersion(context.Background(), mod.CustomerID, version.VariantVersionID)
	require.NoError(t, err)
}

// =====================================================
// DELETE VARIANT
// =====================================================

func TestDeleteVariantCascades(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)

	v1 := f.uploadVersion(t, mod, variant, "1.0.0", []byte("one"))
	v2 := f.uploadVersion(t, mod, variant, "1.1.0", []byte("two"))

	require.NoError(t, f.svc.DeleteVariant(context.Background(), owner, mod.ModID, variant.VariantID))

	// Variant record is gone
	_, err := f.variants.Get(context.Background(), mod.CustomerID, variant.VariantID)
	require.ErrorIs(t, err, model.ErrVariantNotFound)

	// Version records are gone
	_, err = f.variants.GetVersion(context.Background(), mod.CustomerID, v1.VariantVersionID)
	require.ErrorIs(t, err, model.ErrVersionNotFound)
	_, err = f.variants.GetVersion(context.Background(), mod.CustomerID, v2.VariantVersionID)
	require.ErrorIs(t, err, model.ErrVersionNotFound)

	// Blobs under the variant prefix are gone
	infos, err := f.blobs.List(context.Background(), storage.VariantPrefix(mod.CustomerID, mod.ModID, variant.VariantID))
	require.NoError(t, err)
	require.Empty(t, infos)

	// The mod snapshot no longer mentions the variant
	stored, err := f.mods.Find(context.Background(), mod.ModID)
	require.NoError(t, err)
	require.Nil(t, stored.FindVariant(variant.VariantID))
}

func TestDeleteVariantUnknownVariant(t *testing.T) {
	f := newFixture(t)
	mod, _ := f.seedMod(t, authz.VisibilityPublic)

	err := f.svc.DeleteVariant(context.Background(), owner, mod.ModID, "var_missing")
	requireVariantErrCode(t, err, model.ErrCodeVariantNotFound)
}

func TestVariantFromAnotherModNotReachable(t *testing.T) {
	f := newFixture(t)
	mod, parent := f.seedMod(t, authz.VisibilityPublic)
	variant := f.createVariant(t, mod, parent)

	other := &modmodel.Mod{ModID: "mod_other", CustomerID: owner.CustomerID, Visibility: authz.VisibilityPublic}
	require.NoError(t, f.mods.Save(context.Background(), other))

	// The variant exists in the same scope but belongs to mod_seed
	_, err := f.svc.ListVersions(context.Background(), owner, other.ModID, variant.VariantID)
	requireVariantErrCode(t, err, model.ErrCodeVariantNotFound)
}
