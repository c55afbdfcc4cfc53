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
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flintdb"
	"flintdb/bson"
)

func TestIndexKeySizeBoundary(t *testing.T) {
	db, _ := openTemp(t, nil)
	defer db.Close()
	c := db.Collection("docs")
	_, err := c.EnsureIndex("K", "$.K", false)
	require.NoError(t, err)

	// a string key serializes as 4 length bytes + content: 1020 content
	// bytes hit the 1024-byte cap exactly
	_, err = c.Insert(bson.D("_id", bson.Int32(1), "K", bson.String(strings.Repeat("x", 1020))))
	assert.NoError(t, err, "key of exactly 1024 bytes must succeed")

	_, err = c.Insert(bson.D("_id", bson.Int32(2), "K", bson.String(strings.Repeat("x", 1021))))
	assert.True(t, flintdb.ErrorIs(err, flintdb.ErrIndexKeyTooLarge), "got %v", err)
}

func TestDocumentSizeBoundary(t *testing.T) {
	db, err := flintdb.Open(":memory:", &flintdb.Options{Compression: "none"})
	require.NoError(t, err)
	defer db.Close()
	c := db.Collection("blobs")

	// document layout: 4 length + (_id int32 element 9) + ("b" binary
	// element 3 + 4 + payload) + terminator = payload + 21 bytes
	const overhead = 21
	exact := bson.D("_id", bson.Int32(1), "b", bson.Binary(make([]byte, 16*1024*1024-overhead)))
	_, err = c.Insert(exact)
	assert.NoError(t, err, "a document of exactly 16 MiB must succeed")

	over := bson.D("_id", bson.Int32(2), "b", bson.Binary(make([]byte, 16*1024*1024-overhead+1)))
	_, err = c.Insert(over)
	assert.True(t, flintdb.ErrorIs(err, flintdb.ErrDocumentTooLarge), "got %v", err)

	got, err := c.FindByID(bson.Int32(1))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 16*1024*1024-overhead, len(got.Get("b").BinaryValue()))
}

func TestTooManyIndexes(t *testing.T) {
	db, err := flintdb.Open(":memory:", nil)
	require.NoError(t, err)
	defer db.Close()
	c := db.Collection("wide")
	_, err = c.Insert(bson.D("_id", bson.Int32(1)))
	require.NoError(t, err)

	// 254 user indexes plus _id fill all 255 definitions
	for i := 0; i < 254; i++ {
		name := fmt.Sprintf("%c%c", 'a'+i/26, 'a'+i%26)
		created, err := c.EnsureIndex(name, "$.q", false)
		require.NoError(t, err, "index %d (%s)", i, name)
		require.True(t, created)
	}
	_, err = c.EnsureIndex("zz", "$.q", false)
	assert.True(t, flintdb.ErrorIs(err, flintdb.ErrTooManyIndexes), "got %v", err)
}

func TestCheckpointZeroLeavesLogForReplay(t *testing.T) {
	db, path := openTemp(t, nil)
	require.NoError(t, db.SetPragma("CHECKPOINT", 0))

	c := db.Collection("docs")
	for i := 1; i <= 50; i++ {
		_, err := c.Insert(bson.D("_id", bson.Int32(int32(i))))
		require.NoError(t, err)
	}
	logSize := db.Stats().LogSize
	assert.Greater(t, logSize, int64(0))
	require.NoError(t, db.Close())

	// the shutdown checkpoint was disabled: the log survived on disk
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	re, err := flintdb.Open(path, nil)
	require.NoError(t, err)
	defer re.Close()
	count, err := re.Collection("docs").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(50), count, "reopen replays the intact log")
}

func TestEncryption(t *testing.T) {
	opts := &flintdb.Options{Password: "s3cret", Compression: "none"}
	db, path := openTemp(t, opts)
	c := db.Collection("vault")
	_, err := c.Insert(bson.D("_id", bson.Int32(1), "note", bson.String("TopSecretPayloadMarker")))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("TopSecretPayloadMarker")),
		"document bytes must not appear cleartext on disk")

	_, err = flintdb.Open(path, &flintdb.Options{Password: "wrong"})
	assert.True(t, flintdb.ErrorIs(err, flintdb.ErrWrongPassword), "got %v", err)
	_, err = flintdb.Open(path, nil)
	assert.True(t, flintdb.ErrorIs(err, flintdb.ErrWrongPassword), "got %v", err)

	re, err := flintdb.Open(path, opts)
	require.NoError(t, err)
	defer re.Close()
	got, err := re.Collection("vault").FindByID(bson.Int32(1))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "TopSecretPayloadMarker", got.Get("note").StringValue())
}

func TestPragmaPersistence(t *testing.T) {
	db, path := openTemp(t, nil)
	require.NoError(t, db.SetPragma("USER_VERSION", 42))
	require.NoError(t, db.SetPragma("TIMEOUT", 30))
	assert.Error(t, db.SetPragma("COLLATION", 0), "COLLATION only changes via rebuild")
	require.NoError(t, db.Close())

	re, err := flintdb.Open(path, nil)
	require.NoError(t, err)
	defer re.Close()
	v, err := re.Pragma("USER_VERSION")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
	v, err = re.Pragma("TIMEOUT")
	require.NoError(t, err)
	assert.Equal(t, int64(30), v)
}

func TestMultiKeyArrayIndex(t *testing.T) {
	db, _ := openTemp(t, nil)
	defer db.Close()
	c := db.Collection("posts")

	_, err := c.Insert(
		bson.D("_id", bson.Int32(1), "Tags", bson.Array(bson.String("go"), bson.String("db"), bson.String("go"))),
		bson.D("_id", bson.Int32(2), "Tags", bson.Array(bson.String("db"))),
	)
	require.NoError(t, err)
	_, err = c.EnsureIndex("Tags", "$.Tags", false)
	require.NoError(t, err)

	byTag := func(tag string) []*bson.Document {
		docs, err := c.FindAll(flintdb.Query{
			Predicates: []flintdb.Predicate{flintdb.Eq("Tags", bson.String(tag))},
		})
		require.NoError(t, err)
		return docs
	}

	goDocs := byTag("go")
	require.Len(t, goDocs, 1, "duplicate array elements emit one entry")
	assert.Equal(t, int32(1), goDocs[0].ID().Int32Value())
	assert.Len(t, byTag("db"), 2)

	_, err = c.Delete(bson.Int32(1))
	require.NoError(t, err)
	assert.Empty(t, byTag("go"), "delete removes every entry of the document")
	assert.Len(t, byTag("db"), 1)
}

func TestUniqueIndex(t *testing.T) {
	db, _ := openTemp(t, nil)
	defer db.Close()
	c := db.Collection("users")

	_, err := c.Insert(bson.D("_id", bson.Int32(1), "mail", bson.String("a@x.io")))
	require.NoError(t, err)
	_, err = c.EnsureIndex("mail", "$.mail", true)
	require.NoError(t, err)

	_, err = c.Insert(bson.D("_id", bson.Int32(2), "mail", bson.String("a@x.io")))
	assert.True(t, flintdb.ErrorIs(err, flintdb.ErrDuplicateKey), "got %v", err)

	_, err = c.Insert(bson.D("_id", bson.Int32(3), "mail", bson.String("b@x.io")))
	require.NoError(t, err)
}

func TestDropAndRenameCollection(t *testing.T) {
	db, _ := openTemp(t, nil)
	defer db.Close()
	c := db.Collection("olds")
	for i := 1; i <= 20; i++ {
		_, err := c.Insert(bson.D("_id", bson.Int32(int32(i))))
		require.NoError(t, err)
	}
	_, err := c.EnsureIndex("v", "$.v", false)
	require.NoError(t, err)

	require.NoError(t, db.RenameCollection("olds", "news"))
	assert.NotContains(t, db.CollectionNames(), "olds")
	count, err := db.Collection("news").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(20), count)

	assert.True(t, flintdb.ErrorIs(db.RenameCollection("missing", "x"), flintdb.ErrNoCollection))
	assert.Error(t, db.RenameCollection("news", "bad name"))

	dropped, err := db.DropCollection("news")
	require.NoError(t, err)
	assert.True(t, dropped)
	dropped, err = db.DropCollection("news")
	require.NoError(t, err)
	assert.False(t, dropped)

	// reading a dropped (now missing) collection is empty, not an error
	count, err = db.Collection("news").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// updates against a missing collection fail
	_, err = db.Collection("news").Update(bson.D("_id", bson.Int32(1)))
	assert.True(t, flintdb.ErrorIs(err, flintdb.ErrNoCollection))
}

func TestDropIndexRules(t *testing.T) {
	db, _ := openTemp(t, nil)
	defer db.Close()
	c := db.Collection("docs")
	_, err := c.Insert(bson.D("_id", bson.Int32(1), "v", bson.Int32(9)))
	require.NoError(t, err)

	_, err = c.DropIndex("_id")
	assert.True(t, flintdb.ErrorIs(err, flintdb.ErrCannotDropPK))

	dropped, err := c.DropIndex("nope")
	require.NoError(t, err)
	assert.False(t, dropped)

	_, err = c.EnsureIndex("v", "$.v", false)
	require.NoError(t, err)
	dropped, err = c.DropIndex("v")
	require.NoError(t, err)
	assert.True(t, dropped)

	// the document is still reachable through a full scan
	docs, err := c.FindAll(flintdb.Query{
		Predicates: []flintdb.Predicate{flintdb.Eq("v", bson.Int32(9))},
	})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestCollationCaseInsensitiveLookup(t *testing.T) {
	db, _ := openTemp(t, nil)
	defer db.Close()
	c := db.Collection("people")
	_, err := c.Insert(bson.D("_id", bson.Int32(1), "Name", bson.String("Jane")))
	require.NoError(t, err)
	_, err = c.EnsureIndex("Name", "$.Name", false)
	require.NoError(t, err)

	docs, err := c.FindAll(flintdb.Query{
		Predicates: []flintdb.Predicate{flintdb.Eq("Name", bson.String("jane"))},
	})
	require.NoError(t, err)
	assert.Len(t, docs, 1, "default collation is case-insensitive")
}

func TestCollectionWriteLockTimeout(t *testing.T) {
	db, _ := openTemp(t, &flintdb.Options{Timeout: time.Second})
	defer db.Close()
	c := db.Collection("hot")

	require.NoError(t, db.BeginTrans())
	_, err := c.Insert(bson.D("_id", bson.Int32(1)))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Insert(bson.D("_id", bson.Int32(2)))
		done <- err
	}()
	err = <-done
	assert.True(t, flintdb.ErrorIs(err, flintdb.ErrTimeout), "got %v", err)

	require.NoError(t, db.Commit())
}

func TestTransactionLimit(t *testing.T) {
	db, err := flintdb.Open(":memory:", &flintdb.Options{Checkpoint: 8})
	require.NoError(t, err)
	defer db.Close()
	c := db.Collection("docs")

	// spilling keeps many small writes inside the tiny budget
	for i := 1; i <= 200; i++ {
		_, err := c.Insert(bson.D("_id", bson.Int32(int32(i))))
		require.NoError(t, err)
	}

	// one operation that dirties more pages than the whole budget fails
	_, err = c.EnsureIndex("Tags", "$.Tags", false)
	require.NoError(t, err)
	big := make([]bson.Value, 800)
	for i := range big {
		big[i] = bson.String(fmt.Sprintf("tag-%03d-%s", i, strings.Repeat("y", 80)))
	}
	_, err = c.Insert(bson.D("_id", bson.Int32(9999), "Tags", bson.Array(big...)))
	assert.True(t, flintdb.ErrorIs(err, flintdb.ErrTransactionLimit), "got %v", err)
}

func TestRebuildCompactsAndChangesCollation(t *testing.T) {
	db, path := openTemp(t, nil)
	c := db.Collection("bulk")
	payload := strings.Repeat("z", 500)
	for i := 1; i <= 500; i++ {
		_, err := c.Insert(bson.D("_id", bson.Int32(int32(i)), "p", bson.String(payload)))
		require.NoError(t, err)
	}
	_, err := c.EnsureIndex("p", "$.p", false)
	require.NoError(t, err)
	ids := make([]bson.Value, 0, 400)
	for i := 1; i <= 400; i++ {
		ids = append(ids, bson.Int32(int32(i)))
	}
	_, err = c.Delete(ids...)
	require.NoError(t, err)
	require.NoError(t, db.Checkpoint())
	before := db.Stats().DataFileSize

	reclaimed, err := db.Rebuild(bson.BinaryCollation(), nil)
	require.NoError(t, err)
	assert.Greater(t, reclaimed, int64(0))
	assert.Less(t, db.Stats().DataFileSize, before)

	count, err := db.Collection("bulk").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(100), count)

	collation, err := db.Pragma("COLLATION")
	require.NoError(t, err)
	assert.Equal(t, int64(bson.BinaryCollation().Code()), collation)
	require.NoError(t, db.Close())

	// the rebuilt file reopens cleanly
	re, err := flintdb.Open(path, nil)
	require.NoError(t, err)
	defer re.Close()
	count, err = re.Collection("bulk").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(100), count)
}

func TestConcurrentWritersOnDistinctCollections(t *testing.T) {
	db, _ := openTemp(t, nil)
	defer db.Close()

	const perWriter = 100
	done := make(chan error, 4)
	for w := 0; w < 4; w++ {
		name := fmt.Sprintf("stream_%d", w)
		go func() {
			c := db.Collection(name)
			for i := 1; i <= perWriter; i++ {
				if _, err := c.Insert(bson.D("_id", bson.Int32(int32(i)))); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}()
	}
	for w := 0; w < 4; w++ {
		require.NoError(t, <-done)
	}

	for w := 0; w < 4; w++ {
		count, err := db.Collection(fmt.Sprintf("stream_%d", w)).Count()
		require.NoError(t, err)
		assert.Equal(t, int64(perWriter), count)
	}
}
