package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCandidate() Candidate {
	return Candidate{
		ActionType: ActionCreate,
		UserID:     "0xabc123",
		UserRole:   string(RoleInvestigator),
		Status:     StatusSuccess,
		EvidenceID: StringPtr("EV-001"),
		IPAddress:  "10.0.0.1",
	}
}

func TestValidate_RejectsOutsideClosedSets(t *testing.T) {
	t.Run("unknown action type", func(t *testing.T) {
		c := validCandidate()
		c.ActionType = "SHRED"
		_, err := Validate(c)
		require.ErrorIs(t, err, ErrInvalidActionType)
		assert.Equal(t, "invalid action type", err.Error())
	})

	t.Run("missing action type", func(t *testing.T) {
		c := validCandidate()
		c.ActionType = ""
		_, err := Validate(c)
		require.ErrorIs(t, err, ErrInvalidActionType)
	})

	t.Run("lowercase action type is not accepted", func(t *testing.T) {
		c := validCandidate()
		c.ActionType = "create"
		_, err := Validate(c)
		require.ErrorIs(t, err, ErrInvalidActionType)
	})

	t.Run("empty user id", func(t *testing.T) {
		c := validCandidate()
		c.UserID = ""
		_, err := Validate(c)
		require.ErrorIs(t, err, ErrMissingUserID)
		assert.Equal(t, "missing user id", err.Error())
	})

	t.Run("whitespace user id", func(t *testing.T) {
		c := validCandidate()
		c.UserID = "   "
		_, err := Validate(c)
		require.ErrorIs(t, err, ErrMissingUserID)
	})

	t.Run("unknown status", func(t *testing.T) {
		c := validCandidate()
		c.Status = "DONE"
		_, err := Validate(c)
		require.ErrorIs(t, err, ErrInvalidStatus)
		assert.Equal(t, "invalid status", err.Error())
	})

	t.Run("action type is checked before user id", func(t *testing.T) {
		_, err := Validate(Candidate{Status: StatusSuccess})
		require.ErrorIs(t, err, ErrInvalidActionType)
	})

	t.Run("user id is checked before status", func(t *testing.T) {
		_, err := Validate(Candidate{ActionType: ActionAccess})
		require.ErrorIs(t, err, ErrMissingUserID)
	})
}

func TestValidate_AcceptsEveryClosedSetMember(t *testing.T) {
	for _, action := range ActionTypes {
		for _, status := range Statuses {
			c := validCandidate()
			c.ActionType = action
			c.Status = status
			event, err := Validate(c)
			require.NoError(t, err, "%s/%s", action, status)
			assert.Equal(t, action, event.ActionType)
			assert.Equal(t, status, event.Status)
		}
	}
}

func TestValidate_Defaults(t *testing.T) {
	c := Candidate{ActionType: ActionAccess, UserID: "system", Status: StatusPending}

	event, err := Validate(c)
	require.NoError(t, err)

	assert.Equal(t, "unknown", event.UserRole)
	assert.Equal(t, UnknownIP, event.IPAddress)
	assert.NotNil(t, event.Details)
	assert.Empty(t, event.Details)
	assert.Nil(t, event.EvidenceID)
	assert.Nil(t, event.CaseID)
	assert.Empty(t, event.ID, "ids are assigned by the store")
	assert.True(t, event.Timestamp.IsZero(), "timestamps are stamped by the writer")
}

func TestValidate_RoleIsNotCheckedAgainstKnownRoles(t *testing.T) {
	c := validCandidate()
	c.UserRole = "janitor"

	event, err := Validate(c)
	require.NoError(t, err)
	assert.Equal(t, "janitor", event.UserRole)
	assert.False(t, Role(event.UserRole).IsValid())
}

func TestValidate_DetailsNormalization(t *testing.T) {
	t.Run("map passes through", func(t *testing.T) {
		c := validCandidate()
		c.Details = map[string]any{"reason": "sealed"}
		event, err := Validate(c)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"reason": "sealed"}, event.Details)
	})

	t.Run("string map is widened", func(t *testing.T) {
		c := validCandidate()
		c.Details = map[string]string{"reason": "sealed"}
		event, err := Validate(c)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"reason": "sealed"}, event.Details)
	})

	t.Run("scalar is wrapped as message", func(t *testing.T) {
		c := validCandidate()
		c.Details = "hash mismatch"
		event, err := Validate(c)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"message": "hash mismatch"}, event.Details)
	})

	t.Run("slice is wrapped as message", func(t *testing.T) {
		c := validCandidate()
		c.Details = []int{1, 2}
		event, err := Validate(c)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"message": []int{1, 2}}, event.Details)
	})
}

func TestValidate_BlankResourceIDsBecomeNil(t *testing.T) {
	c := validCandidate()
	c.EvidenceID = StringPtr(" ")
	blank := ""
	c.CaseID = &blank

	event, err := Validate(c)
	require.NoError(t, err)
	assert.Nil(t, event.EvidenceID)
	assert.Nil(t, event.CaseID)
}

func TestFilter_Matches(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	event := Event{
		Timestamp:  ts,
		ActionType: ActionVerify,
		EvidenceID: StringPtr("EV-9"),
		CaseID:     StringPtr("CASE-1"),
		UserID:     "0xabc",
		Status:     StatusFailure,
	}
	before := ts.Add(-time.Minute)
	after := ts.Add(time.Minute)

	assert.True(t, Filter{}.Matches(event))
	assert.True(t, Filter{EvidenceID: "EV-9", CaseID: "CASE-1", UserID: "0xabc"}.Matches(event))
	assert.True(t, Filter{StartDate: &ts, EndDate: &ts}.Matches(event), "range bounds are inclusive")
	assert.True(t, Filter{StartDate: &before, EndDate: &after}.Matches(event))
	assert.False(t, Filter{StartDate: &after}.Matches(event))
	assert.False(t, Filter{EndDate: &before}.Matches(event))
	assert.False(t, Filter{ActionType: ActionCreate}.Matches(event))
	assert.False(t, Filter{Status: StatusSuccess}.Matches(event))
	assert.False(t, Filter{EvidenceID: "EV-1"}.Matches(event))
	assert.False(t, Filter{CaseID: "CASE-2"}.Matches(Event{}))
}

func TestFilter_Normalized(t *testing.T) {
	f := Filter{}.Normalized()
	assert.Equal(t, DefaultLimit, f.Limit)
	assert.Equal(t, 0, f.Offset)

	f = Filter{Limit: 5000, Offset: -3}.Normalized()
	assert.Equal(t, MaxLimit, f.Limit)
	assert.Equal(t, 0, f.Offset)
}
