package datastore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsevault/pulsevault/pkg/models"
)

func newTestStore(t *testing.T) *Datastore {
	t.Helper()
	ds, err := NewInMemory(Options{Migrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds
}

func newTestBucket(t *testing.T, ds *Datastore, bucketType string) int64 {
	t.Helper()
	id, err := ds.CreateBucket(models.Bucket{
		Type:   bucketType,
		Data:   map[string]any{"client": "test"},
		UserID: 1,
	})
	require.NoError(t, err)
	return id
}

func ts(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func TestCreateBucket_Idempotent(t *testing.T) {
	ds := newTestStore(t)

	first, err := ds.CreateBucket(models.Bucket{Type: "window", UserID: 1})
	assert.NoError(t, err)
	second, err := ds.CreateBucket(models.Bucket{Type: "window", UserID: 1})
	assert.NoError(t, err)
	assert.Equal(t, first, second)

	// Same type for a different user is a different bucket.
	other, err := ds.CreateBucket(models.Bucket{Type: "window", UserID: 2})
	assert.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestCreateBucket_InlineEvents(t *testing.T) {
	ds := newTestStore(t)

	id, err := ds.CreateBucket(models.Bucket{
		Type:   "afk",
		UserID: 1,
		Events: []models.Event{
			{Timestamp: ts(100), Duration: 5 * time.Second, Data: map[string]any{"status": "afk"}},
		},
	})
	require.NoError(t, err)

	events, err := ds.GetEvents(id, nil, nil, 0)
	assert.NoError(t, err)
	assert.Len(t, events, 1)

	// The cached bucket never carries the inline events back out.
	bucket, err := ds.GetBucket(id)
	assert.NoError(t, err)
	assert.Empty(t, bucket.Events)
	require.NotNil(t, bucket.Metadata.Start)
	assert.Equal(t, ts(100), *bucket.Metadata.Start)
}

func TestGetBucket_NotFound(t *testing.T) {
	ds := newTestStore(t)
	_, err := ds.GetBucket(42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetBuckets_FilteredByUser(t *testing.T) {
	ds := newTestStore(t)
	a := newTestBucket(t, ds, "window")
	b := newTestBucket(t, ds, "afk")
	_, err := ds.CreateBucket(models.Bucket{Type: "window", UserID: 7})
	require.NoError(t, err)

	buckets, err := ds.GetBuckets(1)
	assert.NoError(t, err)
	assert.Len(t, buckets, 2)
	assert.Contains(t, buckets, a)
	assert.Contains(t, buckets, b)
}

func TestDeleteBucket(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")

	assert.NoError(t, ds.DeleteBucket(id))
	_, err := ds.GetBucket(id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, ds.DeleteBucket(id), ErrNotFound)
}

func TestInsertEvents_AssignsIDs(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")

	inserted, err := ds.InsertEvents(id, []models.Event{
		{Timestamp: ts(100), Duration: 5 * time.Second, Data: map[string]any{"app": "editor"}},
		{Timestamp: ts(110), Duration: 3 * time.Second, Data: map[string]any{"app": "browser"}},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 2)
	assert.NotZero(t, inserted[0].ID)
	assert.NotZero(t, inserted[1].ID)
	assert.NotEqual(t, inserted[0].ID, inserted[1].ID)
}

func TestInsertEvents_ReplaceByID(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")

	inserted, err := ds.InsertEvents(id, []models.Event{
		{Timestamp: ts(100), Duration: 5 * time.Second, Data: map[string]any{"app": "editor"}},
	})
	require.NoError(t, err)

	replacement := inserted[0]
	replacement.Data = map[string]any{"app": "terminal"}
	_, err = ds.InsertEvents(id, []models.Event{replacement})
	require.NoError(t, err)

	got, err := ds.GetEvent(id, inserted[0].ID)
	assert.NoError(t, err)
	assert.Equal(t, "terminal", got.Data["app"])

	count, err := ds.GetEventCount(id, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBucketMetadata_ExtendsMonotonically(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")

	_, err := ds.InsertEvents(id, []models.Event{
		{Timestamp: ts(100), Duration: 10 * time.Second, Data: map[string]any{}},
	})
	require.NoError(t, err)

	// An event nested inside the existing bounds must not shrink them.
	_, err = ds.InsertEvents(id, []models.Event{
		{Timestamp: ts(103), Duration: 2 * time.Second, Data: map[string]any{}},
	})
	require.NoError(t, err)

	bucket, err := ds.GetBucket(id)
	require.NoError(t, err)
	require.NotNil(t, bucket.Metadata.Start)
	require.NotNil(t, bucket.Metadata.End)
	assert.Equal(t, ts(100), *bucket.Metadata.Start)
	assert.Equal(t, ts(110), *bucket.Metadata.End)

	_, err = ds.InsertEvents(id, []models.Event{
		{Timestamp: ts(90), Duration: 2 * time.Second, Data: map[string]any{}},
		{Timestamp: ts(120), Duration: 5 * time.Second, Data: map[string]any{}},
	})
	require.NoError(t, err)

	bucket, err = ds.GetBucket(id)
	require.NoError(t, err)
	assert.Equal(t, ts(90), *bucket.Metadata.Start)
	assert.Equal(t, ts(125), *bucket.Metadata.End)
}

func TestGetEvents_OrderAndLimit(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")

	for _, start := range []int64{100, 200, 300} {
		_, err := ds.InsertEvents(id, []models.Event{
			{Timestamp: ts(start), Duration: time.Second, Data: map[string]any{}},
		})
		require.NoError(t, err)
	}

	events, err := ds.GetEvents(id, nil, nil, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, ts(300), events[0].Timestamp)
	assert.Equal(t, ts(100), events[2].Timestamp)

	events, err = ds.GetEvents(id, nil, nil, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, ts(300), events[0].Timestamp)
}

func TestGetEvents_ClipsToWindow(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")

	_, err := ds.InsertEvents(id, []models.Event{
		{Timestamp: ts(100), Duration: 100 * time.Second, Data: map[string]any{}},
	})
	require.NoError(t, err)

	start := ts(120)
	end := ts(150)
	events, err := ds.GetEvents(id, &start, &end, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ts(120), events[0].Timestamp)
	assert.Equal(t, 30*time.Second, events[0].Duration)
}

func TestGetEvents_ReversedWindowIsEmpty(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")

	_, err := ds.InsertEvents(id, []models.Event{
		{Timestamp: ts(100), Duration: time.Second, Data: map[string]any{}},
	})
	require.NoError(t, err)

	start := ts(200)
	end := ts(100)
	events, err := ds.GetEvents(id, &start, &end, 0)
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestGetEventCount(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")

	for _, start := range []int64{100, 200, 300} {
		_, err := ds.InsertEvents(id, []models.Event{
			{Timestamp: ts(start), Duration: time.Second, Data: map[string]any{}},
		})
		require.NoError(t, err)
	}

	count, err := ds.GetEventCount(id, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)

	start := ts(150)
	end := ts(350)
	count, err = ds.GetEventCount(id, &start, &end)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// A collapsed window counts nothing.
	count, err = ds.GetEventCount(id, &start, &start)
	assert.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteEventsByID(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")

	inserted, err := ds.InsertEvents(id, []models.Event{
		{Timestamp: ts(100), Duration: time.Second, Data: map[string]any{}},
		{Timestamp: ts(200), Duration: time.Second, Data: map[string]any{}},
	})
	require.NoError(t, err)

	require.NoError(t, ds.DeleteEventsByID(id, []int64{inserted[0].ID}))
	count, err := ds.GetEventCount(id, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGetEvent_NotFound(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")
	_, err := ds.GetEvent(id, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTeamEvents_Filtered(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")

	_, err := ds.InsertEvents(id, []models.Event{
		{Timestamp: ts(100), Duration: time.Second, Data: map[string]any{}, TeamID: 3},
		{Timestamp: ts(200), Duration: time.Second, Data: map[string]any{}, TeamID: 4},
		{Timestamp: ts(300), Duration: time.Second, Data: map[string]any{}},
	})
	require.NoError(t, err)

	events, err := ds.GetTeamEvents(id, nil, nil, 0, 3)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ts(100), events[0].Timestamp)
}

func TestHeartbeat_MergesIntoLastEvent(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")
	data := map[string]any{"app": "editor"}

	first, err := ds.Heartbeat(id, models.Event{Timestamp: ts(100), Duration: 5 * time.Second, Data: data}, 10)
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	merged, err := ds.Heartbeat(id, models.Event{Timestamp: ts(106), Duration: time.Second, Data: data}, 10)
	require.NoError(t, err)
	assert.Equal(t, ts(100), merged.Timestamp)
	assert.Equal(t, 7*time.Second, merged.Duration)

	// Merging replaced the stored row rather than adding one.
	count, err := ds.GetEventCount(id, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestHeartbeat_GapTooLargeInsertsNewEvent(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")
	data := map[string]any{"app": "editor"}

	_, err := ds.Heartbeat(id, models.Event{Timestamp: ts(100), Duration: 5 * time.Second, Data: data}, 10)
	require.NoError(t, err)
	_, err = ds.Heartbeat(id, models.Event{Timestamp: ts(116), Duration: time.Second, Data: data}, 10)
	require.NoError(t, err)

	count, err := ds.GetEventCount(id, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestHeartbeat_DifferentDataInsertsNewEvent(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")

	_, err := ds.Heartbeat(id, models.Event{Timestamp: ts(100), Duration: 5 * time.Second, Data: map[string]any{"app": "editor"}}, 10)
	require.NoError(t, err)
	_, err = ds.Heartbeat(id, models.Event{Timestamp: ts(103), Duration: time.Second, Data: map[string]any{"app": "browser"}}, 10)
	require.NoError(t, err)

	count, err := ds.GetEventCount(id, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestHeartbeat_UnknownBucket(t *testing.T) {
	ds := newTestStore(t)
	_, err := ds.Heartbeat(42, models.Event{Timestamp: ts(100), Data: map[string]any{}}, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHeartbeat_SurvivesDirectInsert(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")
	data := map[string]any{"app": "editor"}

	_, err := ds.Heartbeat(id, models.Event{Timestamp: ts(100), Duration: 5 * time.Second, Data: data}, 10)
	require.NoError(t, err)

	// A direct insert lands between heartbeats and must become the new
	// merge candidate, not the stale cached one.
	_, err = ds.InsertEvents(id, []models.Event{
		{Timestamp: ts(106), Duration: time.Second, Data: map[string]any{"app": "browser"}},
	})
	require.NoError(t, err)

	_, err = ds.Heartbeat(id, models.Event{Timestamp: ts(108), Duration: time.Second, Data: data}, 10)
	require.NoError(t, err)

	count, err := ds.GetEventCount(id, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestKeyValue_RoundTrip(t *testing.T) {
	ds := newTestStore(t)

	require.NoError(t, ds.SetKeyValue("settings.theme", `"dark"`))
	value, err := ds.GetKeyValue("settings.theme")
	assert.NoError(t, err)
	assert.Equal(t, `"dark"`, value)

	require.NoError(t, ds.SetKeyValue("settings.theme", `"light"`))
	value, err = ds.GetKeyValue("settings.theme")
	assert.NoError(t, err)
	assert.Equal(t, `"light"`, value)

	require.NoError(t, ds.DeleteKeyValue("settings.theme"))
	_, err = ds.GetKeyValue("settings.theme")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is still fine.
	assert.NoError(t, ds.DeleteKeyValue("settings.theme"))
}

func TestGetKeyValues_SettingsNamespaceOnly(t *testing.T) {
	ds := newTestStore(t)

	require.NoError(t, ds.SetKeyValue("settings.theme", `"dark"`))
	require.NoError(t, ds.SetKeyValue("settings.locale", `"en"`))
	require.NoError(t, ds.SetKeyValue("internal.counter", "3"))

	values, err := ds.GetKeyValues("%")
	assert.NoError(t, err)
	assert.Len(t, values, 2)
	assert.Contains(t, values, "settings.theme")
	assert.Contains(t, values, "settings.locale")
	assert.NotContains(t, values, "internal.counter")
}

func TestUsers_SeededAdmin(t *testing.T) {
	ds := newTestStore(t)

	admin, err := ds.GetUserByEmail("admin@admin.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.NotEmpty(t, admin.Password)
	assert.NotEqual(t, "admin", admin.Password)
}

func TestUsers_AddAndList(t *testing.T) {
	ds := newTestStore(t)

	created, err := ds.AddUser(models.User{
		Username: "jdoe",
		Email:    "jdoe@example.com",
		Name:     "John",
		Lastname: "Doe",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, created.Role)
	assert.NotZero(t, created.ID)

	_, err = ds.AddUser(models.User{Username: "jdoe2", Email: "jdoe@example.com", Name: "J", Lastname: "D", Password: "hunter2hunter2"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	users, err := ds.GetAllUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "jdoe@example.com", users[0].Email)

	got, err := ds.GetUser(created.ID)
	assert.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestTeams_Lifecycle(t *testing.T) {
	ds := newTestStore(t)

	owner, err := ds.AddUser(models.User{Username: "owner", Email: "owner@example.com", Name: "O", Lastname: "W", Password: "password123"})
	require.NoError(t, err)
	member, err := ds.AddUser(models.User{Username: "member", Email: "member@example.com", Name: "M", Lastname: "B", Password: "password123"})
	require.NoError(t, err)

	require.NoError(t, ds.AddTeam(models.TeamRequest{Name: "core", Description: "core team"}, owner.ID))

	teams, err := ds.GetTeams(owner.ID)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	teamID := teams[0].ID
	assert.Equal(t, "core", teams[0].Name)

	team, err := ds.GetTeam(teamID)
	assert.NoError(t, err)
	assert.Equal(t, owner.ID, team.OwnerID)

	_, err = ds.GetTeam(teamID + 100)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, ds.AddMembers(teamID, []int64{member.ID}))
	count, err := ds.GetTeamMembersCount(teamID)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	members, err := ds.GetTeamMembers(teamID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, member.ID, members[0].UserID)
	assert.Equal(t, "member@example.com", members[0].Email)

	mine, err := ds.GetUserTeams(member.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, teamID, mine[0].ID)

	require.NoError(t, ds.RemoveMember(teamID, members[0].ID))
	count, err = ds.GetTeamMembersCount(teamID)
	assert.NoError(t, err)
	assert.Zero(t, count)
}

func TestTeamConfiguration(t *testing.T) {
	ds := newTestStore(t)

	owner, err := ds.AddUser(models.User{Username: "owner", Email: "owner@example.com", Name: "O", Lastname: "W", Password: "password123"})
	require.NoError(t, err)
	require.NoError(t, ds.AddTeam(models.TeamRequest{Name: "core"}, owner.ID))
	teams, err := ds.GetTeams(owner.ID)
	require.NoError(t, err)
	teamID := teams[0].ID

	_, err = ds.GetTeamConfiguration(teamID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, ds.AddTeamConfiguration(teamID, "editor,browser"))
	cfg, err := ds.GetTeamConfiguration(teamID)
	require.NoError(t, err)
	assert.Equal(t, []string{"editor", "browser"}, cfg.Apps)

	require.NoError(t, ds.UpdateTeamConfiguration(teamID, "terminal"))
	cfg, err = ds.GetTeamConfiguration(teamID)
	require.NoError(t, err)
	assert.Equal(t, []string{"terminal"}, cfg.Apps)
}

func TestForceCommitAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	ds, err := New(path, Options{Migrate: true})
	require.NoError(t, err)

	id := newTestBucket(t, ds, "window")
	_, err = ds.InsertEvents(id, []models.Event{
		{Timestamp: ts(100), Duration: 5 * time.Second, Data: map[string]any{"app": "editor"}},
	})
	require.NoError(t, err)
	require.NoError(t, ds.ForceCommit())
	require.NoError(t, ds.Close())

	reopened, err := New(path, Options{Migrate: true})
	require.NoError(t, err)
	defer reopened.Close()

	bucket, err := reopened.GetBucket(id)
	require.NoError(t, err)
	assert.Equal(t, "window", bucket.Type)
	require.NotNil(t, bucket.Metadata.Start)
	assert.Equal(t, ts(100), *bucket.Metadata.Start)
	require.NotNil(t, bucket.Metadata.End)
	assert.Equal(t, ts(105), *bucket.Metadata.End)

	events, err := reopened.GetEvents(id, nil, nil, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "editor", events[0].Data["app"])
}

func TestClose_CommitsPendingWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	ds, err := New(path, Options{Migrate: true})
	require.NoError(t, err)
	id := newTestBucket(t, ds, "window")
	_, err = ds.InsertEvents(id, []models.Event{
		{Timestamp: ts(100), Duration: time.Second, Data: map[string]any{}},
	})
	require.NoError(t, err)
	// No ForceCommit: shutdown itself must flush.
	require.NoError(t, ds.Close())

	reopened, err := New(path, Options{Migrate: true})
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.GetEventCount(id, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestClose_SubsequentCallsFail(t *testing.T) {
	ds, err := NewInMemory(Options{Migrate: true})
	require.NoError(t, err)
	require.NoError(t, ds.Close())

	_, err = ds.GetBucket(1)
	assert.True(t, errors.Is(err, ErrClosed) || errors.Is(err, ErrInternal))
}

func TestConcurrentWriters(t *testing.T) {
	ds := newTestStore(t)
	id := newTestBucket(t, ds, "window")

	done := make(chan error)
	for g := 0; g < 4; g++ {
		go func(g int) {
			var err error
			for i := 0; i < 25; i++ {
				_, e := ds.InsertEvents(id, []models.Event{{
					Timestamp: ts(int64(g*1000 + i)),
					Duration:  time.Second,
					Data:      map[string]any{"g": g},
				}})
				if e != nil {
					err = e
				}
			}
			done <- err
		}(g)
	}
	for g := 0; g < 4; g++ {
		assert.NoError(t, <-done)
	}

	count, err := ds.GetEventCount(id, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(100), count)
}
