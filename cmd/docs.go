package cmd

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// https://pmarsceill.github.io/just-the-docs/docs/navigation-structure/
const rootDoc = `---
layout: default
title: %s
nav_order: %d
has_children: true
permalink: /
---
`

// child command without children
const childDoc = `---
layout: default
title: %s
parent: %s
nav_order: %d
---
`

// child with children
const childParentDoc = `---
layout: default
title: %s
parent: %s
nav_order: %d
has_children: true
---
`

// grandchildren
const grandchildDoc = `---
layout: default
title: %s
parent: %s
grand_parent: %s
nav_order: %d
---
`

// docType codes whether the command is a grandchild, child, etc
type docType int

const (
	root docType = iota
	child
	childParent
	grandchild
)

// meta is for describing the position/info for a command doc page
type meta struct {
	docType     docType
	title       string
	navOrder    int
	parent      string
	grandParent string
}

// map from the base Markdown file name to its build meta
var metaMap = map[string]meta{
	"pvacvector":            {root, "pvacvector", 0, "", ""},
	"pvacvector_vector":     {child, "vector", 0, "pvacvector", ""},
	"pvacvector_ls":         {childParent, "ls", 1, "pvacvector", ""},
	"pvacvector_ls_methods": {grandchild, "methods", 0, "ls", "pvacvector"},
	"pvacvector_ls_spacers": {grandchild, "spacers", 1, "ls", "pvacvector"},
	"pvacvector_ls_cutoffs": {grandchild, "cutoffs", 2, "ls", "pvacvector"},
}

// docsCmd writes Markdown documentation for every command.
var docsCmd = &cobra.Command{
	Use:    "docs",
	Short:  "Write Markdown docs for each command",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		return doc.GenMarkdownTreeCustom(RootCmd, dir, filePrepender, linkHandler)
	},
}

func init() {
	docsCmd.Flags().StringP("dir", "d", "./docs", "directory to write the docs to")

	RootCmd.AddCommand(docsCmd)
}

// filePrepender adds YAML headings that are required by the just-the-docs theme
// https://github.com/spf13/cobra/blob/master/doc/md_docs.md
func filePrepender(filename string) string {
	name := filepath.Base(filename)
	base := strings.TrimSuffix(name, path.Ext(name))
	m, ok := metaMap[base]
	if !ok {
		return ""
	}

	switch m.docType {
	case root:
		return fmt.Sprintf(rootDoc, m.title, m.navOrder)
	case child:
		return fmt.Sprintf(childDoc, m.title, m.parent, m.navOrder)
	case childParent:
		return fmt.Sprintf(childParentDoc, m.title, m.parent, m.navOrder)
	case grandchild:
		return fmt.Sprintf(grandchildDoc, m.title, m.parent, m.grandParent, m.navOrder)
	}

	return ""
}

// linkHandler returns the URL to a documentation page
func linkHandler(filename string) string {
	name := filepath.Base(filename)
	base := strings.TrimSuffix(name, path.Ext(name))

	if base == "pvacvector" {
		return "/"
	}
	return base
}
