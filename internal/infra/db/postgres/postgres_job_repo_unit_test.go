//go:build !integration

package postgres

import (
	"errors"
	"strings"
	"testing"
	"time"

	"longform-scriptgen/internal/domain"
	"longform-scriptgen/internal/domain/model"
)

func TestBuildJobUpdate(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()

	t.Run("only set fields are written", func(t *testing.T) {
		q, args, err := buildJobUpdate("job-1", model.JobPatch{
			Status:         model.Ptr(model.JobStatusPaused),
			AppendChapters: []string{"a", "b"},
		}, now)
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{
			"status=$1",
			"chapters_content=chapters_content || $2::jsonb",
			"updated_at=$3",
			"WHERE id=$4",
			"RETURNING id, source",
		} {
			if !strings.Contains(q, want) {
				t.Errorf("query missing %q:\n%s", want, q)
			}
		}
		if strings.Contains(q, "hook=") || strings.Contains(q, "library_status=") {
			t.Errorf("query touches unset columns:\n%s", q)
		}
		if len(args) != 4 || args[1] != `["a","b"]` || args[3] != "job-1" {
			t.Errorf("args = %#v", args)
		}
	})

	t.Run("empty patch still bumps updated_at", func(t *testing.T) {
		q, args, err := buildJobUpdate("x", model.JobPatch{}, now)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(q, "UPDATE script_jobs SET updated_at=$1 WHERE id=$2") || len(args) != 2 {
			t.Errorf("q = %s args = %v", q, args)
		}
	})

	t.Run("empty error string clears the column", func(t *testing.T) {
		q, args, _ := buildJobUpdate("x", model.JobPatch{Error: model.Ptr("")}, now)
		if !strings.Contains(q, "error=$1") || args[0] != "" {
			t.Errorf("q = %s args = %v", q, args)
		}
	})
}

func TestMarshalJobJSON_NilSlices(t *testing.T) {
	outlines, chapters, ideas, urls, pkgs, err := marshalJobJSON(&model.Job{})
	if err != nil {
		t.Fatal(err)
	}
	if outlines != "[]" || chapters != "[]" || urls != "[]" || pkgs != "[]" {
		t.Errorf("nil slices should encode as []: %s %s %s %s", outlines, chapters, urls, pkgs)
	}
	if ideas != nil {
		t.Errorf("absent ideas should be NULL, got %q", *ideas)
	}
}

func TestGetExecutor(t *testing.T) {
	if _, err := getExecutor(nil, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("nil pool, nil tx: err = %v", err)
	}
	if _, err := getExecutor(nil, "not a tx"); !errors.Is(err, domain.ErrInvalidExecContext) {
		t.Errorf("string tx: err = %v", err)
	}
}
