package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandalwing/si/internal/actor"
	"github.com/sandalwing/si/internal/model"
	"github.com/sandalwing/si/internal/si"
	"github.com/sandalwing/si/internal/sitest"
	"github.com/sandalwing/si/internal/tenancy"
	"github.com/sandalwing/si/internal/unitwork"
	"github.com/sandalwing/si/internal/visibility"
)

func TestRelateAndListRelated(t *testing.T) {
	f := sitest.New(t)
	scope := tenancy.ForWorkspace("w1")
	head := visibility.ForHead()

	var comp, schema model.Row
	f.Run(t, func(w *unitwork.Work) error {
		var err error
		if schema, err = f.Engine.MustKind("schema").Create(ctx, w, actor.System, tenancy.Universal(), head, "server", []byte(`{}`)); err != nil {
			return err
		}
		comp, err = f.Engine.MustKind("component").Create(ctx, w, actor.System, scope, head, "api", []byte(`{}`))
		return err
	})

	var edge model.RelRow
	f.Run(t, func(w *unitwork.Work) error {
		var err error
		edge, err = f.Engine.Relate(ctx, w, actor.System, scope, head, "component_schema", comp.ID, schema.ID)
		return err
	})
	assert.Equal(t, comp.ID, edge.ParentID)
	assert.Equal(t, schema.ID, edge.ChildID)
	// The edge takes the caller's tenancy, even when the child is universal.
	assert.Equal(t, scope, edge.Tenancy)

	f.Read(t, func(w *unitwork.Work) {
		children, err := f.Engine.ListRelated(ctx, w, scope, head, "component_schema", comp.ID)
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, schema.ID, children[0].ID)
	})

	// Relating the same pair again is idempotent.
	f.Run(t, func(w *unitwork.Work) error {
		again, err := f.Engine.Relate(ctx, w, actor.System, scope, head, "component_schema", comp.ID, schema.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, edge.Pk, again.Pk)
		return nil
	})
}

func TestRelateValidatesRule(t *testing.T) {
	f := sitest.New(t)
	scope := tenancy.ForWorkspace("w1")
	head := visibility.ForHead()
	props := f.Engine.MustKind("prop")

	var leaf, container, child model.Row
	f.Run(t, func(w *unitwork.Work) error {
		var err error
		if leaf, err = props.Create(ctx, w, actor.System, scope, head, "title", []byte(`{"kind":"string"}`)); err != nil {
			return err
		}
		if container, err = props.Create(ctx, w, actor.System, scope, head, "spec", []byte(`{"kind":"object"}`)); err != nil {
			return err
		}
		child, err = props.Create(ctx, w, actor.System, scope, head, "port", []byte(`{"kind":"number"}`))
		return err
	})

	// A scalar prop cannot own children.
	err := f.Coord.Run(ctx, func(w *unitwork.Work) error {
		_, err := f.Engine.Relate(ctx, w, actor.System, scope, head, "prop_parent", leaf.ID, child.ID)
		return err
	})
	require.ErrorIs(t, err, si.ErrInvalidRelation)

	// Container props can.
	f.Run(t, func(w *unitwork.Work) error {
		_, err := f.Engine.Relate(ctx, w, actor.System, scope, head, "prop_parent", container.ID, child.ID)
		return err
	})
}

func TestUnrelate(t *testing.T) {
	f := sitest.New(t)
	scope := tenancy.ForWorkspace("w1")
	head := visibility.ForHead()

	var comp, schema model.Row
	f.Run(t, func(w *unitwork.Work) error {
		var err error
		if schema, err = f.Engine.MustKind("schema").Create(ctx, w, actor.System, tenancy.Universal(), head, "server", []byte(`{}`)); err != nil {
			return err
		}
		if comp, err = f.Engine.MustKind("component").Create(ctx, w, actor.System, scope, head, "api", []byte(`{}`)); err != nil {
			return err
		}
		_, err = f.Engine.Relate(ctx, w, actor.System, scope, head, "component_schema", comp.ID, schema.ID)
		return err
	})

	f.Run(t, func(w *unitwork.Work) error {
		gone, err := f.Engine.Unrelate(ctx, w, actor.System, scope, head, "component_schema", comp.ID, schema.ID)
		if err != nil {
			return err
		}
		assert.True(t, gone.Deleted())
		return nil
	})

	f.Read(t, func(w *unitwork.Work) {
		children, err := f.Engine.ListRelated(ctx, w, scope, head, "component_schema", comp.ID)
		require.NoError(t, err)
		assert.Empty(t, children)
	})

	// Removing an edge that is already gone is NotFound.
	err := f.Coord.Run(ctx, func(w *unitwork.Work) error {
		_, err := f.Engine.Unrelate(ctx, w, actor.System, scope, head, "component_schema", comp.ID, schema.ID)
		return err
	})
	require.ErrorIs(t, err, si.ErrNotFound)
}

func TestRelateUnknownRelationKind(t *testing.T) {
	f := sitest.New(t)
	err := f.Coord.Run(ctx, func(w *unitwork.Work) error {
		_, err := f.Engine.Relate(ctx, w, actor.System, tenancy.Universal(), visibility.ForHead(), "bogus", "a", "b")
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestListRelatedSkipsDeletedChildren(t *testing.T) {
	f := sitest.New(t)
	scope := tenancy.ForWorkspace("w1")
	head := visibility.ForHead()
	schemas := f.Engine.MustKind("schema")

	var comp, schema model.Row
	f.Run(t, func(w *unitwork.Work) error {
		var err error
		if schema, err = schemas.Create(ctx, w, actor.System, scope, head, "temp", []byte(`{}`)); err != nil {
			return err
		}
		if comp, err = f.Engine.MustKind("component").Create(ctx, w, actor.System, scope, head, "api", []byte(`{}`)); err != nil {
			return err
		}
		_, err = f.Engine.Relate(ctx, w, actor.System, scope, head, "component_schema", comp.ID, schema.ID)
		return err
	})
	f.Run(t, func(w *unitwork.Work) error {
		_, err := schemas.SoftDelete(ctx, w, actor.System, scope, head, schema.ID)
		return err
	})

	f.Read(t, func(w *unitwork.Work) {
		children, err := f.Engine.ListRelated(ctx, w, scope, head, "component_schema", comp.ID)
		require.NoError(t, err)
		assert.Empty(t, children)
	})
}
