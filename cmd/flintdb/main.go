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

// Command flintdb is a small interactive shell over a FlintDB datafile.
//
// Usage:
//
//	flintdb <file|:memory:> [--password <pw>] [--readonly]
//
// Commands:
//
//	collections                         list collections
//	count <collection>                  count documents
//	get <collection> <id>               load one document by int id
//	insert <collection> <field=value>*  insert a document (auto int id)
//	delete <collection> <id>            delete by int id
//	ensureindex <collection> <field>    index a field
//	find <collection> <field> <value>   equality query
//	pragma <name> [value]               read or write a pragma
//	checkpoint                          force a checkpoint
//	stats                               engine counters
//	exit
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"flintdb"
	"flintdb/bson"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: flintdb <file|:memory:> [--password <pw>] [--readonly]")
		os.Exit(2)
	}
	file := os.Args[1]
	opts := &flintdb.Options{AutoID: flintdb.AutoIDInt64}
	for i := 2; i < len(os.Args); i++ {
		switch os.Args[i] {
		case "--password":
			i++
			if i < len(os.Args) {
				opts.Password = os.Args[i]
			}
		case "--readonly":
			opts.ReadOnly = true
		}
	}

	db, err := flintdb.Open(file, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	rl, err := readline.New("flintdb> ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			break
		}
		if err := run(db, args); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func run(db *flintdb.Database, args []string) error {
	switch args[0] {
	case "collections":
		for _, name := range db.CollectionNames() {
			fmt.Println(name)
		}
	case "count":
		if len(args) < 2 {
			return fmt.Errorf("usage: count <collection>")
		}
		n, err := db.Collection(args[1]).Count()
		if err != nil {
			return err
		}
		fmt.Println(n)
	case "get":
		if len(args) < 3 {
			return fmt.Errorf("usage: get <collection> <id>")
		}
		id, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return err
		}
		doc, err := db.Collection(args[1]).FindByID(bson.Int64(id))
		if err != nil {
			return err
		}
		if doc == nil {
			fmt.Println("(not found)")
		} else {
			fmt.Println(doc)
		}
	case "insert":
		if len(args) < 2 {
			return fmt.Errorf("usage: insert <collection> <field=value>...")
		}
		doc := bson.NewDocument()
		for _, pair := range args[2:] {
			field, value, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("expected field=value, got %q", pair)
			}
			doc.Set(field, parseValue(value))
		}
		n, err := db.Collection(args[1]).Insert(doc)
		if err != nil {
			return err
		}
		fmt.Printf("inserted %d (_id=%s)\n", n, doc.ID())
	case "delete":
		if len(args) < 3 {
			return fmt.Errorf("usage: delete <collection> <id>")
		}
		id, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return err
		}
		n, err := db.Collection(args[1]).Delete(bson.Int64(id))
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d\n", n)
	case "ensureindex":
		if len(args) < 3 {
			return fmt.Errorf("usage: ensureindex <collection> <field>")
		}
		created, err := db.Collection(args[1]).EnsureIndex(args[2], "$."+args[2], false)
		if err != nil {
			return err
		}
		fmt.Printf("created=%v\n", created)
	case "find":
		if len(args) < 4 {
			return fmt.Errorf("usage: find <collection> <field> <value>")
		}
		cur, err := db.Collection(args[1]).Find(flintdb.Query{
			Predicates: []flintdb.Predicate{flintdb.Eq(args[2], parseValue(args[3]))},
		})
		if err != nil {
			return err
		}
		defer cur.Close()
		for cur.Next() {
			fmt.Println(cur.Doc())
		}
		return cur.Err()
	case "pragma":
		if len(args) == 2 {
			v, err := db.Pragma(args[1])
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		}
		if len(args) == 3 {
			v, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return err
			}
			return db.SetPragma(args[1], v)
		}
		return fmt.Errorf("usage: pragma <name> [value]")
	case "checkpoint":
		return db.Checkpoint()
	case "stats":
		s := db.Stats()
		fmt.Printf("collections=%d last_page=%d data=%dB log=%dB reads=%d writes=%d hit_rate=%.1f%%\n",
			s.Collections, s.LastPageID, s.DataFileSize, s.LogSize,
			s.PagesRead, s.PagesWritten, s.CacheHitRate)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

// parseValue guesses the BSON type of a shell literal.
func parseValue(s string) bson.Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return bson.Int64(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return bson.Double(f)
	}
	switch s {
	case "true":
		return bson.Boolean(true)
	case "false":
		return bson.Boolean(false)
	case "null":
		return bson.Null
	}
	return bson.String(s)
}
