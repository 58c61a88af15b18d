/*
Copyright 2011 Google Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command mdictd-tool builds, rebuilds and inspects the persistent
// sqlite index that sits in front of an MDX or MDD container.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"mdictd.org/pkg/container"
	"mdictd.org/pkg/index"
	indexsqlite "mdictd.org/pkg/index/sqlite"
)

type command struct {
	name     string
	describe string
	run      func(args []string) error
}

var commands []command

func register(name, describe string, run func(args []string) error) {
	commands = append(commands, command{name, describe, run})
}

func init() {
	register("build", "Build a fresh index for a container, failing if one already exists.", runBuild)
	register("rebuild", "Rebuild the index for a container, replacing any existing one.", runRebuild)
	register("inspect", "Print container header metadata and index status.", runInspect)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]
	for _, c := range commands {
		if c.name == name {
			if err := c.run(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "mdictd-tool %s: %v\n", name, err)
				os.Exit(1)
			}
			return
		}
	}
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: mdictd-tool <command> [args]")
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.describe)
	}
}

func isMDD(path string) bool {
	return len(path) >= 4 && path[len(path)-4:] == ".mdd"
}

func buildIndex(path string, unique, forceOK bool) error {
	dbPath := path + ".db"
	if !forceOK {
		if _, err := os.Stat(dbPath); err == nil {
			return fmt.Errorf("index already exists at %s (use rebuild to replace it)", dbPath)
		}
	}

	cr, err := container.Open(path)
	if err != nil {
		return fmt.Errorf("opening container: %w", err)
	}
	defer cr.Close()

	meta := index.Meta{Encoding: cr.Header.Encoding, Title: cr.Header.Title, Description: cr.Header.Description}
	if ss, err := indexsqlite.StylesheetJSON(cr.Header.Stylesheet); err == nil {
		meta.Stylesheet = ss
	}

	st, err := indexsqlite.Build(context.Background(), dbPath, cr, meta, unique)
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	defer st.Close()

	fmt.Printf("built %s (%d entries)\n", dbPath, countEntries(cr))
	return nil
}

func countEntries(cr *container.Reader) int {
	return len(cr.Entries)
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: mdictd-tool build <path.mdx|path.mdd>")
	}
	path := fs.Arg(0)
	return buildIndex(path, isMDD(path), false)
}

func runRebuild(args []string) error {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: mdictd-tool rebuild <path.mdx|path.mdd>")
	}
	path := fs.Arg(0)
	os.Remove(path + ".db")
	return buildIndex(path, isMDD(path), true)
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: mdictd-tool inspect <path.mdx|path.mdd>")
	}
	path := fs.Arg(0)

	cr, err := container.Open(path)
	if err != nil {
		return fmt.Errorf("opening container: %w", err)
	}
	defer cr.Close()

	fmt.Printf("path:        %s\n", path)
	fmt.Printf("encoding:    %s\n", cr.Header.Encoding)
	fmt.Printf("title:       %s\n", cr.Header.Title)
	fmt.Printf("description: %s\n", cr.Header.Description)
	fmt.Printf("entries:     %d\n", len(cr.Entries))

	dbPath := path + ".db"
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Println("index:       not built")
		return nil
	}
	st, err := indexsqlite.Open(dbPath, isMDD(path))
	if err != nil {
		fmt.Printf("index:       present but stale or unreadable (%v)\n", err)
		return nil
	}
	defer st.Close()
	fmt.Printf("index:       %s (ok)\n", dbPath)
	return nil
}
