/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package flintdb_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flintdb"
	"flintdb/bson"
)

func openTemp(t *testing.T, opts *flintdb.Options) (*flintdb.Database, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := flintdb.Open(path, opts)
	require.NoError(t, err)
	return db, path
}

// copyFile simulates a crash: the on-disk state is captured while the
// engine is still running, then opened as if the process had died.
func copyFile(t *testing.T, src string) string {
	t.Helper()
	raw, err := os.ReadFile(src)
	require.NoError(t, err)
	dst := src + ".crashed"
	require.NoError(t, os.WriteFile(dst, raw, 0644))
	return dst
}

func TestBasicCRUD(t *testing.T) {
	db, _ := openTemp(t, nil)
	defer db.Close()
	customers := db.Collection("customers")

	n, err := customers.Insert(
		bson.D("_id", bson.Int32(1), "Name", bson.String("John")),
		bson.D("_id", bson.Int32(2), "Name", bson.String("Jane")),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	created, err := customers.EnsureIndex("Name", "$.Name", false)
	require.NoError(t, err)
	assert.True(t, created)

	byName := func(name string) []*bson.Document {
		docs, err := customers.FindAll(flintdb.Query{
			Predicates: []flintdb.Predicate{flintdb.Eq("Name", bson.String(name))},
		})
		require.NoError(t, err)
		return docs
	}

	got := byName("Jane")
	require.Len(t, got, 1)
	assert.Equal(t, int32(2), got[0].ID().Int32Value())
	assert.Equal(t, "Jane", got[0].Get("Name").StringValue())

	updated, err := customers.Update(bson.D("_id", bson.Int32(2), "Name", bson.String("Janet")))
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	assert.Empty(t, byName("Jane"))
	janet := byName("Janet")
	require.Len(t, janet, 1)
	assert.Equal(t, int32(2), janet[0].ID().Int32Value())

	deleted, err := customers.Delete(bson.Int32(1))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	count, err := customers.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCrashBeforeCommitLosesTransaction(t *testing.T) {
	db, path := openTemp(t, &flintdb.Options{Checkpoint: 20})
	defer db.Close()

	require.NoError(t, db.BeginTrans())
	docs := db.Collection("docs")
	for i := 1; i <= 1000; i++ {
		_, err := docs.Insert(bson.D("_id", bson.Int32(int32(i)), "n", bson.Int32(int32(i))))
		require.NoError(t, err)
	}
	// the safepoint spills reached the log, the commit never did
	crashed := copyFile(t, path)
	require.NoError(t, db.Rollback())

	re, err := flintdb.Open(crashed, nil)
	require.NoError(t, err)
	defer re.Close()
	count, err := re.Collection("docs").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "no partial transaction may survive recovery")
}

func TestCrashAfterCommitBeforeCheckpoint(t *testing.T) {
	db, path := openTemp(t, nil)
	defer db.Close()

	docs := db.Collection("docs")
	require.NoError(t, db.BeginTrans())
	for i := 1; i <= 1000; i++ {
		_, err := docs.Insert(bson.D("_id", bson.Int32(int32(i))))
		require.NoError(t, err)
	}
	require.NoError(t, db.Commit())
	// default CHECKPOINT=1000 pages: the log is still below threshold
	crashed := copyFile(t, path)

	re, err := flintdb.Open(crashed, nil)
	require.NoError(t, err)
	defer re.Close()

	count, err := re.Collection("docs").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), count)

	// a primary-key scan yields ids 1..1000 in order
	cur, err := re.Collection("docs").Find(flintdb.Query{})
	require.NoError(t, err)
	defer cur.Close()
	want := int32(1)
	for cur.Next() {
		assert.Equal(t, want, cur.Doc().ID().Int32Value())
		want++
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, int32(1001), want)
}

func TestSafepointSpillLargeTransaction(t *testing.T) {
	db, _ := openTemp(t, &flintdb.Options{Checkpoint: 10})
	defer db.Close()

	const total = 3000
	docs := db.Collection("docs")
	require.NoError(t, db.BeginTrans())
	batch := make([]*bson.Document, 0, 100)
	for i := 1; i <= total; i++ {
		batch = append(batch, bson.D("_id", bson.Int32(int32(i)), "v", bson.String("payload")))
		if len(batch) == 100 {
			_, err := docs.Insert(batch...)
			require.NoError(t, err)
			batch = batch[:0]
		}
	}
	require.NoError(t, db.Commit())

	count, err := docs.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(total), count)

	require.NoError(t, db.Checkpoint())
	assert.Equal(t, int64(0), db.Stats().LogSize, "log must be empty after checkpoint")
}

func TestConcurrentReaderSeesStableSnapshot(t *testing.T) {
	db, _ := openTemp(t, nil)
	defer db.Close()
	docs := db.Collection("docs")

	for i := 1; i <= 100; i++ {
		_, err := docs.Insert(bson.D("_id", bson.Int32(int32(i))))
		require.NoError(t, err)
	}

	cur, err := docs.Find(flintdb.Query{})
	require.NoError(t, err)
	defer cur.Close()

	// writer commits 50 more while the reader's cursor is open
	for i := 101; i <= 150; i++ {
		_, err := docs.Insert(bson.D("_id", bson.Int32(int32(i))))
		require.NoError(t, err)
	}

	seen := 0
	for cur.Next() {
		seen++
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, 100, seen, "an open cursor keeps its snapshot")

	count, err := docs.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(150), count, "a new reader sees the committed writes")
}

func TestThreadBinding(t *testing.T) {
	db, _ := openTemp(t, nil)
	defer db.Close()
	docs := db.Collection("docs")

	require.NoError(t, db.BeginTrans())
	_, err := docs.Insert(bson.D("_id", bson.Int32(1)))
	require.NoError(t, err)

	result := make(chan error, 2)
	go func() {
		result <- db.Commit()
		result <- db.Rollback()
	}()
	commitErr := <-result
	rollbackErr := <-result
	assert.True(t, flintdb.ErrorIs(commitErr, flintdb.ErrWrongThread), "got %v", commitErr)
	assert.True(t, flintdb.ErrorIs(rollbackErr, flintdb.ErrWrongThread), "got %v", rollbackErr)

	// the transaction is intact: the owning goroutine still commits
	require.NoError(t, db.Commit())
	count, err := docs.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestNoTransactionAndNesting(t *testing.T) {
	db, _ := openTemp(t, nil)
	defer db.Close()

	assert.True(t, flintdb.ErrorIs(db.Commit(), flintdb.ErrNoTransaction))
	assert.True(t, flintdb.ErrorIs(db.Rollback(), flintdb.ErrNoTransaction))

	require.NoError(t, db.BeginTrans())
	assert.True(t, flintdb.ErrorIs(db.BeginTrans(), flintdb.ErrAlreadyInTrans))
	require.NoError(t, db.Rollback())
}

func TestRoundTripLaws(t *testing.T) {
	db, path := openTemp(t, nil)
	c := db.Collection("laws")

	// insert; find_by_id == d
	_, err := c.Insert(bson.D("_id", bson.Int32(1), "v", bson.String("one")))
	require.NoError(t, err)
	got, err := c.FindByID(bson.Int32(1))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "one", got.Get("v").StringValue())

	// update; find_by_id == d'
	_, err = c.Update(bson.D("_id", bson.Int32(1), "v", bson.String("uno")))
	require.NoError(t, err)
	got, err = c.FindByID(bson.Int32(1))
	require.NoError(t, err)
	assert.Equal(t, "uno", got.Get("v").StringValue())

	// ensure_index twice: second call is a no-op returning false
	created, err := c.EnsureIndex("v", "$.v", false)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = c.EnsureIndex("v", "$.v", false)
	require.NoError(t, err)
	assert.False(t, created)

	// checkpoint twice: second is a no-op
	require.NoError(t, db.Checkpoint())
	require.NoError(t, db.Checkpoint())
	assert.Equal(t, int64(0), db.Stats().LogSize)

	// recovery on a cleanly closed file is a no-op
	require.NoError(t, db.Close())
	re, err := flintdb.Open(path, nil)
	require.NoError(t, err)
	defer re.Close()
	count, err := re.Collection("laws").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	got, err = re.Collection("laws").FindByID(bson.Int32(1))
	require.NoError(t, err)
	assert.Equal(t, "uno", got.Get("v").StringValue())
}

func TestUpsertAndAutoID(t *testing.T) {
	db, _ := openTemp(t, &flintdb.Options{AutoID: flintdb.AutoIDInt64})
	defer db.Close()
	c := db.Collection("items")

	ins, upd, err := c.Upsert(bson.D("name", bson.String("fresh")))
	require.NoError(t, err)
	assert.Equal(t, 1, ins)
	assert.Equal(t, 0, upd)

	doc, err := c.FindByID(bson.Int64(1))
	require.NoError(t, err)
	require.NotNil(t, doc, "auto-increment seeds at 1")

	ins, upd, err = c.Upsert(bson.D("_id", bson.Int64(1), "name", bson.String("stale")))
	require.NoError(t, err)
	assert.Equal(t, 0, ins)
	assert.Equal(t, 1, upd)

	// object-id policy fills a distinct _id per document
	n, err := c.InsertWithAutoID(flintdb.AutoIDObjectID,
		bson.D("name", bson.String("a")), bson.D("name", bson.String("b")))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// id policy None refuses documents without _id
	_, err = c.InsertWithAutoID(flintdb.AutoIDNone, bson.D("name", bson.String("x")))
	assert.True(t, flintdb.ErrorIs(err, flintdb.ErrInvalidName))
}

func TestDuplicateKeyDoesNotAbortExplicitTransaction(t *testing.T) {
	db, _ := openTemp(t, nil)
	defer db.Close()
	c := db.Collection("docs")

	require.NoError(t, db.BeginTrans())
	_, err := c.Insert(bson.D("_id", bson.Int32(1)))
	require.NoError(t, err)

	_, err = c.Insert(bson.D("_id", bson.Int32(1)))
	assert.True(t, flintdb.ErrorIs(err, flintdb.ErrDuplicateKey), "got %v", err)

	// the failed operation aborts, the transaction does not
	_, err = c.Insert(bson.D("_id", bson.Int32(2)))
	require.NoError(t, err)
	require.NoError(t, db.Commit())

	count, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestOrderByAndPaging(t *testing.T) {
	db, _ := openTemp(t, nil)
	defer db.Close()
	c := db.Collection("people")

	for i, name := range []string{"carol", "alice", "eve", "bob", "dave"} {
		_, err := c.Insert(bson.D("_id", bson.Int32(int32(i+1)), "Name", bson.String(name)))
		require.NoError(t, err)
	}
	_, err := c.EnsureIndex("Name", "$.Name", false)
	require.NoError(t, err)

	docs, err := c.FindAll(flintdb.Query{OrderBy: "$.Name"})
	require.NoError(t, err)
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Get("Name").StringValue())
	}
	assert.Equal(t, []string{"alice", "bob", "carol", "dave", "eve"}, names)

	docs, err = c.FindAll(flintdb.Query{OrderBy: "$.Name", OrderDesc: true, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "dave", docs[0].Get("Name").StringValue())
	assert.Equal(t, "carol", docs[1].Get("Name").StringValue())

	// range scan over the index
	docs, err = c.FindAll(flintdb.Query{
		Predicates: []flintdb.Predicate{flintdb.Between("Name", bson.String("b"), bson.String("d"))},
	})
	require.NoError(t, err)
	assert.Len(t, docs, 2) // bob, carol
}
