package authz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseguard/courseguard/internal/audit"
	"github.com/courseguard/courseguard/internal/authz"
	"github.com/courseguard/courseguard/internal/coursekey"
	"github.com/courseguard/courseguard/internal/gate"
)

// recordingAudit captures audit events for assertions.
type recordingAudit struct {
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) {
	r.events = append(r.events, e)
}

// courseRecord stands in for a host-framework course entity.
type courseRecord struct {
	id coursekey.CourseKey
}

func (c courseRecord) CourseKey() coursekey.CourseKey { return c.id }

func newRuleFixture(t *testing.T, g authz.FeatureGate) (*authz.Rule, *recordingAudit) {
	t.Helper()
	svc, _, _ := newFixture("course-v1:X+C+R")
	_, err := svc.Assign(context.Background(), "u1", "admin", authz.InstanceScope(), "ops")
	require.NoError(t, err)

	sink := &recordingAudit{}
	return authz.NewRule(authz.PermManageContent, svc, g, sink), sink
}

func TestRule_Grants(t *testing.T) {
	rule, _ := newRuleFixture(t, gate.Static(true))

	allowed, err := rule.Allow(context.Background(), authz.Actor{ID: "u1"}, coursekey.MustParse("course-v1:X+C+R"))
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRule_DeniesWithoutPermission(t *testing.T) {
	rule, _ := newRuleFixture(t, gate.Static(true))

	allowed, err := rule.Allow(context.Background(), authz.Actor{ID: "stranger"}, coursekey.MustParse("course-v1:X+C+R"))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRule_GateOffDeniesEveryone(t *testing.T) {
	rule, _ := newRuleFixture(t, gate.Static(false))

	allowed, err := rule.Allow(context.Background(), authz.Actor{ID: "u1"}, coursekey.MustParse("course-v1:X+C+R"))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRule_AnonymousDenied(t *testing.T) {
	rule, _ := newRuleFixture(t, gate.Static(true))

	allowed, err := rule.Allow(context.Background(), authz.Anonymous(), coursekey.MustParse("course-v1:X+C+R"))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRule_UnknownCourseIsSilentDenial(t *testing.T) {
	rule, sink := newRuleFixture(t, gate.Static(true))

	allowed, err := rule.Allow(context.Background(), authz.Actor{ID: "u1"}, coursekey.MustParse("course-v1:Ghost+C+R"))
	require.NoError(t, err)
	assert.False(t, allowed)

	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.TypeUnknownCourseDenied, sink.events[0].Type)
	assert.Equal(t, "course-v1:Ghost+C+R", sink.events[0].CourseID)
}

func TestRule_UnsupportedTargetPropagates(t *testing.T) {
	rule, sink := newRuleFixture(t, gate.Static(true))

	_, err := rule.Allow(context.Background(), authz.Actor{ID: "u1"}, 42)
	assert.ErrorIs(t, err, authz.ErrUnsupportedTarget)

	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.TypeUnsupportedTarget, sink.events[0].Type)
}

func TestRule_StorageFailurePropagates(t *testing.T) {
	svc, assignments, _ := newFixture("course-v1:X+C+R")
	boom := errors.New("timeout")
	assignments.failWith = boom

	rule := authz.NewRule(authz.PermManageContent, svc, gate.Static(true), nil)
	_, err := rule.Allow(context.Background(), authz.Actor{ID: "u1"}, coursekey.MustParse("course-v1:X+C+R"))
	assert.ErrorIs(t, err, boom)
}

func TestNormalizeTarget(t *testing.T) {
	course := coursekey.MustParse("course-v1:X+C+R")

	t.Run("course key", func(t *testing.T) {
		got, err := authz.NormalizeTarget(course)
		require.NoError(t, err)
		assert.Equal(t, course, got)
	})

	t.Run("usage key", func(t *testing.T) {
		usage, err := coursekey.ParseUsage("block-v1:X+C+R+type@problem+block@intro")
		require.NoError(t, err)
		got, err := authz.NormalizeTarget(usage)
		require.NoError(t, err)
		assert.Equal(t, "course-v1:X+C+R", got.String())
	})

	t.Run("course record", func(t *testing.T) {
		got, err := authz.NormalizeTarget(courseRecord{id: course})
		require.NoError(t, err)
		assert.Equal(t, course, got)
	})

	t.Run("raw string", func(t *testing.T) {
		got, err := authz.NormalizeTarget("course-v1:X+C+R")
		require.NoError(t, err)
		assert.Equal(t, "X", got.Org())
	})

	t.Run("unparseable string", func(t *testing.T) {
		_, err := authz.NormalizeTarget("definitely not a key")
		assert.ErrorIs(t, err, authz.ErrUnsupportedTarget)
	})

	t.Run("nil", func(t *testing.T) {
		_, err := authz.NormalizeTarget(nil)
		assert.ErrorIs(t, err, authz.ErrUnsupportedTarget)
	})
}
