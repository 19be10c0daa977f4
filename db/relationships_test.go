package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratahq/strata/access"
	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/schema"
)

func stationType(t *testing.T) *schema.RecordType {
	t.Helper()
	return schema.NewBuilder("Station").
		String("name", 32).
		MustBuild()
}

func deviceRefType(t *testing.T) *schema.RecordType {
	t.Helper()
	return schema.NewBuilder("Device").
		String("name", 32).
		Unsigned("station", 64).
		Unsigned("links", 64, schema.Array(4)).
		MustBuild()
}

func refFixture(t *testing.T) (stations, devices *Collection, stationField, linksField int) {
	t.Helper()
	stations = NewCollection("stations", stationType(t), Options{})
	devices = NewCollection("devices", deviceRefType(t), Options{})
	sf, _ := devices.Type().FieldByLabel("station")
	lf, _ := devices.Type().FieldByLabel("links")
	return stations, devices, sf.Index, lf.Index
}

func TestReferenceToMissingTargetIs400(t *testing.T) {
	stations, devices, stationField, _ := refFixture(t)
	g := EnforceReference(devices, stationField, stations, ReferenceOptions{AllowDuplicateTargets: true})
	defer g.Close()

	_, res := devices.Create(func(o *object.Object) error { return o.SetUint(stationField, 999) })
	require.Equal(t, 400, int(res.Status))
	assert.Contains(t, res.Message, "not in collection 'stations'")
	assert.Equal(t, 0, devices.Count())
}

func TestValidReferenceAccepted(t *testing.T) {
	stations, devices, stationField, _ := refFixture(t)
	g := EnforceReference(devices, stationField, stations, ReferenceOptions{AllowDuplicateTargets: true})
	defer g.Close()

	sid, res := stations.Create(nil)
	require.True(t, res.IsOK())

	_, res = devices.Create(func(o *object.Object) error { return o.SetUint(stationField, sid) })
	assert.True(t, res.IsOK(), res.Error())
}

func TestDeletingTargetScrubsReferences(t *testing.T) {
	stations, devices, stationField, linksField := refFixture(t)
	g := EnforceReference(devices, stationField, stations, ReferenceOptions{AllowDuplicateTargets: true})
	defer g.Close()
	g2 := EnforceReference(devices, linksField, stations, ReferenceOptions{AllowDuplicateTargets: true})
	defer g2.Close()

	sid, _ := stations.Create(nil)
	sid2, _ := stations.Create(nil)
	did, res := devices.Create(func(o *object.Object) error {
		if err := o.SetUint(stationField, sid); err != nil {
			return err
		}
		if err := o.Append(linksField, object.Uint(sid)); err != nil {
			return err
		}
		return o.Append(linksField, object.Uint(sid2))
	})
	require.True(t, res.IsOK(), res.Error())

	require.True(t, stations.Delete(sid))

	d, ok := devices.Find(did)
	require.True(t, ok)
	assert.False(t, d.Touched(stationField), "scalar reference must be cleared")
	assert.Equal(t, 1, d.Count(linksField), "stale array reference must be removed")
	v, _ := d.At(linksField, 0)
	assert.Equal(t, sid2, v.AsUint())
}

func TestDuplicateReferenceWithinObjectRejected(t *testing.T) {
	stations, devices, _, linksField := refFixture(t)
	g := EnforceReference(devices, linksField, stations, ReferenceOptions{AllowDuplicateTargets: true})
	defer g.Close()

	sid, _ := stations.Create(nil)
	_, res := devices.Create(func(o *object.Object) error {
		if err := o.Append(linksField, object.Uint(sid)); err != nil {
			return err
		}
		return o.Append(linksField, object.Uint(sid))
	})
	require.Equal(t, 400, int(res.Status))
	assert.Contains(t, res.Message, "duplicate")
}

func TestDuplicateReferenceAcrossObjectsRejected(t *testing.T) {
	stations, devices, stationField, _ := refFixture(t)
	g := EnforceReference(devices, stationField, stations, ReferenceOptions{})
	defer g.Close()

	sid, _ := stations.Create(nil)
	_, res := devices.Create(func(o *object.Object) error { return o.SetUint(stationField, sid) })
	require.True(t, res.IsOK())

	_, res = devices.Create(func(o *object.Object) error { return o.SetUint(stationField, sid) })
	require.Equal(t, 400, int(res.Status))
	assert.Contains(t, res.Message, "reference the same id")
}

func TestCascadeDelete(t *testing.T) {
	stations, devices, stationField, _ := refFixture(t)
	sub := CascadeDelete(stations, devices, stationField)
	defer sub.Close()

	sid, _ := stations.Create(nil)
	other, _ := stations.Create(nil)
	doomed, res := devices.Create(func(o *object.Object) error { return o.SetUint(stationField, sid) })
	require.True(t, res.IsOK())
	survivor, res := devices.Create(func(o *object.Object) error { return o.SetUint(stationField, other) })
	require.True(t, res.IsOK())

	require.True(t, stations.Delete(sid))
	assert.False(t, devices.ContainsID(doomed))
	assert.True(t, devices.ContainsID(survivor))
}

func TestDeleteTogether(t *testing.T) {
	left := NewCollection("left", stationType(t), Options{})
	right := NewCollection("right", stationType(t), Options{})
	g := DeleteTogether(left, right)
	defer g.Close()

	require.True(t, left.RestPut("/5", strings.NewReader(`{}`), access.Root).IsOK())
	require.True(t, right.RestPut("/5", strings.NewReader(`{}`), access.Root).IsOK())

	require.True(t, left.Delete(5))
	assert.False(t, right.ContainsID(5), "mirrored delete")
	assert.Equal(t, 0, right.Count())
}
