// Package plan reads and updates staged implementation plans.
//
// A plan is a markdown document with a title, an overview, one block per
// stage and free-form notes:
//
//	# Implementation Plan: Widgets
//
//	## Overview
//
//	Add widgets.
//
//	## Stages
//
//	### Stage 1: Storage
//
//	- **Status**: pending
//	- **Branch**: widgets/storage
//	- **Parallel group**: 1
//	- **Depends on**: none
//	- **PR**:
//	- **Description**: Persist widgets.
//	- **Files**:
//	  - [internal/store/widget.go]: new table
//	- **Acceptance criteria**:
//	  - [ ] widgets round-trip through the store
//
//	## Notes
//
// Parse is tolerant of partially filled stages. The Updater rewrites only the
// Status and PR fields of one stage and leaves every other byte of the file
// untouched, so hand edits elsewhere in the document survive a run.
package plan
