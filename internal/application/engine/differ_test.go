package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
	"github.com/jbctechsolutions/invsync/internal/domain/reconcile"
)

func TestClassify_Partition(t *testing.T) {
	f := newFixture(t, []entity.Kind{entity.KindLaptop})
	ctx := context.Background()
	remote := f.remotes[entity.KindLaptop]

	base := laptop("L3", "Dell", "original")
	f.writeLocal(t, entity.KindLaptop,
		laptop("L1", "Dell", "local only"),
		laptop("L2", "Lenovo", "same"),
		laptop("L3", "Dell", "edited locally"),
		laptop("L4", "Apple", "original"),
		laptop("L5", "HP", "local edit"),
		laptop("L6", "Acer", ""),
	)

	// L2: equal on both sides.
	remote.Seed(entity.RemoteRecord{RemoteID: "R2", Payload: laptop("L2", "Lenovo", "same").Payload()})
	f.link(t, entity.KindLaptop, "L2", "R2", laptop("L2", "Lenovo", "same").Payload())

	// L3: local moved away from baseline, remote still at baseline.
	remote.Seed(entity.RemoteRecord{RemoteID: "R3", Payload: base.Payload()})
	f.link(t, entity.KindLaptop, "L3", "R3", base.Payload())

	// L4: remote moved away from baseline, local still at baseline.
	remote.Seed(entity.RemoteRecord{RemoteID: "R4", Payload: laptop("L4", "Apple", "remote edit").Payload()})
	f.link(t, entity.KindLaptop, "L4", "R4", laptop("L4", "Apple", "original").Payload())

	// L5: both sides changed.
	remote.Seed(entity.RemoteRecord{RemoteID: "R5", Payload: laptop("L5", "HP", "remote edit").Payload()})
	f.link(t, entity.KindLaptop, "L5", "R5", laptop("L5", "HP", "original").Payload())

	// L6: remote payload unparseable.
	remote.Seed(entity.RemoteRecord{RemoteID: "R6", Payload: entity.Payload{"brand": 42}, ParseErr: fmt.Errorf("brand: not a string")})
	f.link(t, entity.KindLaptop, "L6", "R6", nil)

	// Never linked remote record.
	remote.Seed(entity.RemoteRecord{RemoteID: "R9", Payload: laptop("", "Asus", "").Payload()})

	c, err := f.service.Classify(ctx, entity.KindLaptop)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, []string{"L1", "L3"}, c.Ahead)
	assert.Equal(t, []string{"L4", "remote:R9"}, c.Behind)
	assert.Equal(t, []string{"L5", "L6"}, c.Modified)
	assert.Equal(t, []string{"L2"}, c.Unchanged)
	assert.Equal(t, 7, c.Counts().Total())
	assert.False(t, c.ClassifiedAt.IsZero())

	e, ok := c.Entry("L6")
	require.True(t, ok)
	assert.Contains(t, e.Annotation, "could not be parsed")

	e, ok = c.Entry("L5")
	require.True(t, ok)
	require.Len(t, e.Fields, 1)
	assert.Equal(t, "notes", e.Fields[0].Field)
	assert.Contains(t, e.Annotation, "notes: ")
}

func TestClassify_NoBaselineDifferenceIsModified(t *testing.T) {
	f := newFixture(t, []entity.Kind{entity.KindPerson})
	f.writeLocal(t, entity.KindPerson, person("P1", "Ada Lovelace"))
	f.remotes[entity.KindPerson].Seed(entity.RemoteRecord{RemoteID: "R1", Payload: person("P1", "Ada King").Payload()})
	f.link(t, entity.KindPerson, "P1", "R1", nil)

	c, err := f.service.Classify(context.Background(), entity.KindPerson)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, c.Modified)
}

func TestClassify_EmptyValuesAreEquivalent(t *testing.T) {
	f := newFixture(t, []entity.Kind{entity.KindLaptop})
	f.writeLocal(t, entity.KindLaptop, laptop("L1", "Dell", ""))

	f.remotes[entity.KindLaptop].Seed(entity.RemoteRecord{
		RemoteID: "R1",
		Payload:  entity.Payload{"model": "X1", "brand": "Dell", "notes": nil, "status": ""},
	})
	f.link(t, entity.KindLaptop, "L1", "R1", nil)

	c, err := f.service.Classify(context.Background(), entity.KindLaptop)
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, c.Unchanged)
}

func TestClassify_LinkedLocalWithDeletedRemoteIsAhead(t *testing.T) {
	f := newFixture(t, []entity.Kind{entity.KindLaptop})
	f.writeLocal(t, entity.KindLaptop, laptop("L1", "Dell", ""))
	f.link(t, entity.KindLaptop, "L1", "gone", laptop("L1", "Dell", "").Payload())

	c, err := f.service.Classify(context.Background(), entity.KindLaptop)
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, c.Ahead)
}

func TestClassify_LinkedRemoteWithDeletedLocalIsBehind(t *testing.T) {
	f := newFixture(t, []entity.Kind{entity.KindLaptop})
	f.writeLocal(t, entity.KindLaptop)
	f.remotes[entity.KindLaptop].Seed(entity.RemoteRecord{RemoteID: "R1", Payload: laptop("L1", "Dell", "").Payload()})
	f.link(t, entity.KindLaptop, "L1", "R1", nil)

	c, err := f.service.Classify(context.Background(), entity.KindLaptop)
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, c.Behind, "linked remote keeps the local id")
}

func TestClassify_DanglingLinkExcluded(t *testing.T) {
	f := newFixture(t, []entity.Kind{entity.KindLaptop})
	f.link(t, entity.KindLaptop, "L1", "R1", nil)

	c, err := f.service.Classify(context.Background(), entity.KindLaptop)
	require.NoError(t, err)
	assert.Zero(t, c.Counts().Total())
	require.Len(t, c.Dangling, 1)
	assert.Equal(t, "L1", c.Dangling[0].LocalID)
}

func TestClassify_AdoptsEchoedLocalID(t *testing.T) {
	f := newFixture(t, []entity.Kind{entity.KindLaptop})
	f.writeLocal(t, entity.KindLaptop, laptop("L1", "Dell", "x"))
	f.remotes[entity.KindLaptop].Seed(entity.RemoteRecord{
		RemoteID: "R1",
		LocalID:  "L1",
		Payload:  laptop("L1", "Dell", "x").Payload(),
	})

	c, err := f.service.Classify(context.Background(), entity.KindLaptop)
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, c.Unchanged)
	assert.Empty(t, c.Behind)
}

func TestSync_LinksAdoptedPairSoLaterEditsAreAhead(t *testing.T) {
	f := newFixture(t, []entity.Kind{entity.KindLaptop})
	ctx := context.Background()
	remote := f.remotes[entity.KindLaptop]
	f.writeLocal(t, entity.KindLaptop, laptop("L1", "Dell", "x"))
	remote.Seed(entity.RemoteRecord{
		RemoteID: "R1",
		LocalID:  "L1",
		Payload:  laptop("L1", "Dell", "x").Payload(),
	})

	report, err := f.service.Sync(ctx, nil)
	require.NoError(t, err)
	res := report.Results[entity.KindLaptop]
	assert.Empty(t, res.Pushed)
	assert.Equal(t, []string{"L1"}, res.Relinked)

	links, err := f.links.List(ctx, entity.KindLaptop)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "R1", links[0].RemoteID)
	want, err := laptop("L1", "Dell", "x").Payload().Hash()
	require.NoError(t, err)
	assert.Equal(t, want, links[0].BaselineHash)

	f.writeLocal(t, entity.KindLaptop, laptop("L1", "Dell", "y"))

	c, err := f.service.Classify(ctx, entity.KindLaptop)
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, c.Ahead)
	assert.Empty(t, c.Modified)

	report, err = f.service.Sync(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, report.Results[entity.KindLaptop].Pushed)
	_, creates, updates := remote.Calls()
	assert.Zero(t, creates)
	assert.Equal(t, int64(1), updates)
}

func TestClassify_MissingCollectionIsEmpty(t *testing.T) {
	f := newFixture(t, []entity.Kind{entity.KindToolkit})

	c, err := f.service.Classify(context.Background(), entity.KindToolkit)
	require.NoError(t, err)
	assert.Zero(t, c.Counts().Total())
}

func TestClassify_Errors(t *testing.T) {
	t.Run("unregistered kind", func(t *testing.T) {
		f := newFixture(t, []entity.Kind{entity.KindLaptop})
		_, err := f.service.Classify(context.Background(), entity.KindTool)
		require.Error(t, err)
		assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	})

	t.Run("remote list failure", func(t *testing.T) {
		f := newFixture(t, []entity.Kind{entity.KindLaptop})
		f.remotes[entity.KindLaptop].FailList(fmt.Errorf("connection reset"))

		_, err := f.service.Classify(context.Background(), entity.KindLaptop)
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrRemoteUnavailable)
	})

	t.Run("unreadable local collection", func(t *testing.T) {
		f := newFixture(t, []entity.Kind{entity.KindLaptop})
		f.writeLocal(t, entity.KindLaptop)
		path := f.stores[entity.KindLaptop].Path()
		require.NoError(t, writeRaw(f, path, "{not json"))

		_, err := f.service.Classify(context.Background(), entity.KindLaptop)
		require.Error(t, err)
		assert.NotEqual(t, errors.CodeRemoteUnavailable, errors.CodeOf(err))
	})
}

func TestClassify_StatesAreExclusive(t *testing.T) {
	f := newFixture(t, []entity.Kind{entity.KindLaptop})
	records := make([]entity.Record, 0, 20)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("L%02d", i)
		records = append(records, laptop(id, "Dell", ""))
		switch i % 4 {
		case 1:
			f.remotes[entity.KindLaptop].Seed(entity.RemoteRecord{RemoteID: "R" + id, Payload: laptop(id, "Dell", "").Payload()})
			f.link(t, entity.KindLaptop, id, "R"+id, nil)
		case 2:
			f.remotes[entity.KindLaptop].Seed(entity.RemoteRecord{RemoteID: "R" + id, Payload: laptop(id, "HP", "").Payload()})
			f.link(t, entity.KindLaptop, id, "R"+id, nil)
		case 3:
			f.remotes[entity.KindLaptop].Seed(entity.RemoteRecord{RemoteID: "X" + id, Payload: laptop(id, "Dell", "").Payload()})
		}
	}
	f.writeLocal(t, entity.KindLaptop, records...)

	c, err := f.service.Classify(context.Background(), entity.KindLaptop)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	seen := map[string]reconcile.State{}
	for _, state := range []reconcile.State{reconcile.StateAhead, reconcile.StateBehind, reconcile.StateModified, reconcile.StateUnchanged} {
		for _, e := range c.Entries(state) {
			_, dup := seen[e.ID]
			assert.False(t, dup, "%s classified twice", e.ID)
			seen[e.ID] = state
		}
	}
	// 20 locals plus 5 never-linked remotes.
	assert.Len(t, seen, 25)
}
