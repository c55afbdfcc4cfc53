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

/*
Package index implements the skip-list used by every named index.

Structure:
==========

Each index hangs between two sentinel nodes (MinValue head, MaxValue
tail) recorded in the index definition. Nodes carry 1..32 levels of
forward and backward links; the level of a new node is drawn from a
geometric distribution with p = 1/2. Nodes of every index of one
collection share the collection's index pages; each node is tagged with
its index's slot.

Node values: the primary-key index points at the document's data block;
secondary indexes point at the document's _id node, so a secondary
lookup hops through the primary key. All index nodes of one document
form a singly-linked chain (NextNode) rooted at the _id node, which is
how delete finds every entry without re-evaluating expressions.
*/
package index

import (
	"math/rand"
	"sync"

	"flintdb/bson"
	dberrors "flintdb/errors"
	"flintdb/internal/storage"
	"flintdb/internal/txn"
)

var (
	levelMu  sync.Mutex
	levelRng = rand.New(rand.NewSource(rand.Int63()))
)

// flipCoin draws a node height: geometric, p = 1/2, capped at 32.
func flipCoin() byte {
	levelMu.Lock()
	defer levelMu.Unlock()
	levels := byte(1)
	for levels < storage.MaxIndexLevels && levelRng.Intn(2) == 1 {
		levels++
	}
	return levels
}

// Service runs skip-list operations inside one snapshot.
type Service struct {
	snapshot  *txn.Snapshot
	collation *bson.Collation
}

// NewService creates an index service over a snapshot.
func NewService(snapshot *txn.Snapshot, collation *bson.Collation) *Service {
	return &Service{snapshot: snapshot, collation: collation}
}

// GetNode loads the node at an address.
func (s *Service) GetNode(addr storage.PageAddress) (*storage.IndexNode, error) {
	page, err := s.snapshot.GetIndexPage(addr.PageID, false)
	if err != nil {
		return nil, err
	}
	return page.GetIndexNode(addr.Index)
}

// getNodeWritable loads a node on a transaction-local writable page.
func (s *Service) getNodeWritable(addr storage.PageAddress) (*storage.IndexNode, error) {
	page, err := s.snapshot.GetIndexPage(addr.PageID, true)
	if err != nil {
		return nil, err
	}
	return page.GetIndexNode(addr.Index)
}

// CreateIndex registers a new index on the collection and plants its
// sentinel nodes.
func (s *Service) CreateIndex(name, expression string, unique bool) (*storage.IndexDefinition, error) {
	col, err := s.snapshot.CollectionPage()
	if err != nil {
		return nil, err
	}
	def, err := col.InsertCollectionIndex(name, expression, unique)
	if err != nil {
		return nil, err
	}

	sentinelSize := storage.IndexNodeSize(storage.MaxIndexLevels, bson.IndexKeySize(bson.MinValue))
	page, wasLinked, err := s.getFreeIndexPage(sentinelSize * 2)
	if err != nil {
		return nil, err
	}
	head, err := page.InsertIndexNode(def.Slot, storage.MaxIndexLevels, bson.MinValue,
		storage.EmptyAddress, bson.IndexKeySize(bson.MinValue))
	if err != nil {
		return nil, err
	}
	tail, err := page.InsertIndexNode(def.Slot, storage.MaxIndexLevels, bson.MaxValue,
		storage.EmptyAddress, bson.IndexKeySize(bson.MaxValue))
	if err != nil {
		return nil, err
	}
	// the second insert may have defragged the page; re-read the head view
	head, err = page.GetIndexNode(head.Position.Index)
	if err != nil {
		return nil, err
	}
	for level := 0; level < storage.MaxIndexLevels; level++ {
		head.SetNext(level, tail.Position)
		tail.SetPrev(level, head.Position)
	}
	if err := s.snapshot.AddOrRemoveFreeIndexList(page, wasLinked); err != nil {
		return nil, err
	}

	def.Head = head.Position
	def.Tail = tail.Position
	def.MaxLevel = 1
	col.UpdateBuffer()
	return def, nil
}

// getFreeIndexPage returns a writable index page with room for size
// bytes, reporting whether it was already on the free index page list.
func (s *Service) getFreeIndexPage(size int) (*storage.IndexPage, bool, error) {
	col, err := s.snapshot.CollectionPage()
	if err != nil {
		return nil, false, err
	}
	if head := col.FreeIndexPageList; head != storage.MaxPageID {
		page, err := s.snapshot.GetIndexPage(head, true)
		if err != nil {
			return nil, false, err
		}
		if page.FreeBytes() >= size+storage.SlotSize*2 {
			return page, true, nil
		}
	}
	page, err := s.snapshot.NewIndexPage()
	if err != nil {
		return nil, false, err
	}
	return page, false, nil
}

// AddNode inserts one key -> value entry, chaining it onto last (the
// previous index node of the same document). A unique index refuses a
// key that already has any entry; a non-unique index deduplicates by the
// value address, never storing the same record twice under one index.
func (s *Service) AddNode(def *storage.IndexDefinition, key bson.Value, value storage.PageAddress, last *storage.IndexNode) (*storage.IndexNode, bool, error) {
	keyLength := bson.IndexKeySize(key)
	if keyLength > storage.MaxIndexKeyLength+1 {
		// +1: the type byte rides on top of the 1024-byte key payload cap
		return nil, false, dberrors.IndexKeyTooLarge(def.Name, keyLength-1)
	}

	// locate the insertion path: path[level] is the rightmost node whose
	// key orders strictly before the new key
	path, eq, err := s.findPath(def, key)
	if err != nil {
		return nil, false, err
	}
	if eq != nil {
		if def.Unique {
			return nil, false, dberrors.DuplicateKey(def.Name, key.String())
		}
		// scan the equal-key run for this value address: the same record
		// never appears twice under one index
		cur := eq
		for {
			if bson.Compare(cur.Key, key, s.collation) != 0 {
				break
			}
			if cur.DataBlock().Equals(value) {
				return cur, false, nil
			}
			next := cur.Next(0)
			if next.Equals(def.Tail) {
				break
			}
			if cur, err = s.GetNode(next); err != nil {
				return nil, false, err
			}
		}
	}

	levels := flipCoin()
	page, wasLinked, err := s.getFreeIndexPage(storage.IndexNodeSize(int(levels), keyLength))
	if err != nil {
		return nil, false, err
	}
	node, err := page.InsertIndexNode(def.Slot, levels, key, value, keyLength)
	if err != nil {
		return nil, false, err
	}

	for level := 0; level < int(levels); level++ {
		prev, err := s.getNodeWritable(path[level])
		if err != nil {
			return nil, false, err
		}
		nextAddr := prev.Next(level)
		next, err := s.getNodeWritable(nextAddr)
		if err != nil {
			return nil, false, err
		}
		node.SetPrev(level, prev.Position)
		node.SetNext(level, nextAddr)
		prev.SetNext(level, node.Position)
		next.SetPrev(level, node.Position)
	}

	if err := s.snapshot.AddOrRemoveFreeIndexList(page, wasLinked); err != nil {
		return nil, false, err
	}
	if levels > def.MaxLevel {
		def.MaxLevel = levels
	}
	def.KeyCount++
	if eq == nil {
		def.UniqueKeyCount++
	}

	if last != nil {
		prevDoc, err := s.getNodeWritable(last.Position)
		if err != nil {
			return nil, false, err
		}
		prevDoc.SetNextNode(node.Position)
	}
	return node, true, nil
}

// findPath descends the skip list, returning the predecessor at every
// level plus the first equal-key node at level 0, if any.
func (s *Service) findPath(def *storage.IndexDefinition, key bson.Value) ([storage.MaxIndexLevels]storage.PageAddress, *storage.IndexNode, error) {
	var path [storage.MaxIndexLevels]storage.PageAddress
	cur, err := s.GetNode(def.Head)
	if err != nil {
		return path, nil, err
	}
	for i := range path {
		path[i] = def.Head
	}
	top := int(def.MaxLevel)
	if top < 1 {
		top = 1
	}
	for level := top - 1; level >= 0; level-- {
		for {
			nextAddr := cur.Next(level)
			if nextAddr.IsEmpty() || nextAddr.Equals(def.Tail) {
				break
			}
			next, err := s.GetNode(nextAddr)
			if err != nil {
				return path, nil, err
			}
			if bson.Compare(next.Key, key, s.collation) >= 0 {
				break
			}
			cur = next
		}
		path[level] = cur.Position
	}

	// the successor at level 0 is the first candidate equal key
	pred, err := s.GetNode(path[0])
	if err != nil {
		return path, nil, err
	}
	nextAddr := pred.Next(0)
	if !nextAddr.IsEmpty() && !nextAddr.Equals(def.Tail) {
		next, err := s.GetNode(nextAddr)
		if err != nil {
			return path, nil, err
		}
		if bson.Compare(next.Key, key, s.collation) == 0 {
			return path, next, nil
		}
	}
	return path, nil, nil
}

// Find returns the first node with the given key, or nil. With sibling
// set, the nearest neighbor in the scan order is returned instead of nil:
// order +1 yields the first node with key >= wanted, order -1 the last
// node with key <= wanted.
func (s *Service) Find(def *storage.IndexDefinition, key bson.Value, sibling bool, order int) (*storage.IndexNode, error) {
	path, eq, err := s.findPath(def, key)
	if err != nil {
		return nil, err
	}
	if eq != nil {
		if order < 0 {
			// walk to the last node of the equal run
			cur := eq
			for {
				nextAddr := cur.Next(0)
				if nextAddr.IsEmpty() || nextAddr.Equals(def.Tail) {
					return cur, nil
				}
				next, err := s.GetNode(nextAddr)
				if err != nil {
					return nil, err
				}
				if bson.Compare(next.Key, key, s.collation) != 0 {
					return cur, nil
				}
				cur = next
			}
		}
		return eq, nil
	}
	if !sibling {
		return nil, nil
	}
	pred, err := s.GetNode(path[0])
	if err != nil {
		return nil, err
	}
	if order < 0 {
		if pred.Position.Equals(def.Head) {
			return nil, nil
		}
		return pred, nil
	}
	nextAddr := pred.Next(0)
	if nextAddr.IsEmpty() || nextAddr.Equals(def.Tail) {
		return nil, nil
	}
	return s.GetNode(nextAddr)
}

// First returns the smallest real node of the index, or nil.
func (s *Service) First(def *storage.IndexDefinition) (*storage.IndexNode, error) {
	head, err := s.GetNode(def.Head)
	if err != nil {
		return nil, err
	}
	nextAddr := head.Next(0)
	if nextAddr.IsEmpty() || nextAddr.Equals(def.Tail) {
		return nil, nil
	}
	return s.GetNode(nextAddr)
}

// Last returns the largest real node of the index, or nil.
func (s *Service) Last(def *storage.IndexDefinition) (*storage.IndexNode, error) {
	tail, err := s.GetNode(def.Tail)
	if err != nil {
		return nil, err
	}
	prevAddr := tail.Prev(0)
	if prevAddr.IsEmpty() || prevAddr.Equals(def.Head) {
		return nil, nil
	}
	return s.GetNode(prevAddr)
}

// Sibling advances a node along level 0: order +1 forward, -1 backward.
// Returns nil at either sentinel.
func (s *Service) Sibling(def *storage.IndexDefinition, node *storage.IndexNode, order int) (*storage.IndexNode, error) {
	var addr storage.PageAddress
	if order >= 0 {
		addr = node.Next(0)
		if addr.IsEmpty() || addr.Equals(def.Tail) {
			return nil, nil
		}
	} else {
		addr = node.Prev(0)
		if addr.IsEmpty() || addr.Equals(def.Head) {
			return nil, nil
		}
	}
	return s.GetNode(addr)
}

// DeleteDocumentNodes removes a document's index nodes by walking the
// chain rooted at its primary-key node. With keepPK set, the _id node
// survives with an emptied chain (the update path re-adds secondaries).
func (s *Service) DeleteDocumentNodes(pkAddr storage.PageAddress, keepPK bool) error {
	col, err := s.snapshot.CollectionPage()
	if err != nil {
		return err
	}
	bySlot := map[byte]*storage.IndexDefinition{}
	for _, def := range col.GetCollectionIndexes() {
		bySlot[def.Slot] = def
	}

	pkNode, err := s.getNodeWritable(pkAddr)
	if err != nil {
		return err
	}
	addr := pkNode.NextNode()
	for !addr.IsEmpty() {
		node, err := s.getNodeWritable(addr)
		if err != nil {
			return err
		}
		next := node.NextNode()
		def := bySlot[node.Slot]
		if def == nil {
			return dberrors.CorruptedPage(addr.PageID, "index node with unknown slot")
		}
		if err := s.deleteNode(def, node); err != nil {
			return err
		}
		addr = next
	}

	if keepPK {
		pkNode, err = s.getNodeWritable(pkAddr)
		if err != nil {
			return err
		}
		pkNode.SetNextNode(storage.EmptyAddress)
	} else {
		pkNode, err = s.getNodeWritable(pkAddr)
		if err != nil {
			return err
		}
		pk := bySlot[pkNode.Slot]
		if pk == nil {
			return dberrors.CorruptedPage(pkAddr.PageID, "index node with unknown slot")
		}
		if err := s.deleteNode(pk, pkNode); err != nil {
			return err
		}
	}
	col.UpdateBuffer()
	return nil
}

// deleteNode unlinks a node at every level and frees its page slot.
func (s *Service) deleteNode(def *storage.IndexDefinition, node *storage.IndexNode) error {
	hadEqual := false
	for level := 0; level < int(node.Levels); level++ {
		prevAddr, nextAddr := node.Prev(level), node.Next(level)
		prev, err := s.getNodeWritable(prevAddr)
		if err != nil {
			return err
		}
		next, err := s.getNodeWritable(nextAddr)
		if err != nil {
			return err
		}
		prev.SetNext(level, nextAddr)
		next.SetPrev(level, prevAddr)
		if level == 0 {
			if !prevAddr.Equals(def.Head) && bson.Compare(prev.Key, node.Key, s.collation) == 0 {
				hadEqual = true
			}
			if !nextAddr.Equals(def.Tail) && bson.Compare(next.Key, node.Key, s.collation) == 0 {
				hadEqual = true
			}
		}
	}

	page, err := s.snapshot.GetIndexPage(node.Position.PageID, true)
	if err != nil {
		return err
	}
	wasLinked := page.FreeBytes() >= storage.MaxIndexNodeSize
	if err := page.DeleteIndexNode(node.Position.Index); err != nil {
		return err
	}
	if err := s.snapshot.AddOrRemoveFreeIndexList(page, wasLinked); err != nil {
		return err
	}

	def.KeyCount--
	if !hadEqual {
		def.UniqueKeyCount--
	}
	return nil
}

// DropIndex removes every node of one index, repairing the per-document
// chains that run through it, then deletes its sentinels and definition.
func (s *Service) DropIndex(name string) error {
	col, err := s.snapshot.CollectionPage()
	if err != nil {
		return err
	}
	def := col.GetCollectionIndex(name)
	if def == nil {
		return dberrors.NoIndex(name)
	}
	pk := col.PK()

	// repair document chains: drop this index's nodes out of each chain
	pkNode, err := s.First(pk)
	if err != nil {
		return err
	}
	for pkNode != nil {
		prev := pkNode
		addr := pkNode.NextNode()
		for !addr.IsEmpty() {
			node, err := s.GetNode(addr)
			if err != nil {
				return err
			}
			nextInChain := node.NextNode()
			if node.Slot == def.Slot {
				prevW, err := s.getNodeWritable(prev.Position)
				if err != nil {
					return err
				}
				prevW.SetNextNode(nextInChain)
				nodeW, err := s.getNodeWritable(addr)
				if err != nil {
					return err
				}
				if err := s.deleteNode(def, nodeW); err != nil {
					return err
				}
			} else {
				prev = node
			}
			addr = nextInChain
		}
		if pkNode, err = s.Sibling(pk, pkNode, 1); err != nil {
			return err
		}
	}

	// delete the sentinels
	for _, addr := range []storage.PageAddress{def.Head, def.Tail} {
		page, err := s.snapshot.GetIndexPage(addr.PageID, true)
		if err != nil {
			return err
		}
		wasLinked := page.FreeBytes() >= storage.MaxIndexNodeSize
		if err := page.DeleteIndexNode(addr.Index); err != nil {
			return err
		}
		if err := s.snapshot.AddOrRemoveFreeIndexList(page, wasLinked); err != nil {
			return err
		}
	}

	col.DeleteCollectionIndex(name)
	return nil
}
