package focus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNav struct{ back bool }

func (f fakeNav) CanGoBack() bool { return f.back }

func TestAuthority_LockTransitionsOwner(t *testing.T) {
	lock := NewLock()
	a := NewAuthority(zap.NewNop(), lock, fakeNav{}, testMenu, "/home")

	var owners []Owner
	a.OnOwnerChanged(func(o Owner) { owners = append(owners, o) })

	lock.Set(true)
	assert.Equal(t, OwnerForceOverlay, a.Owner())
	assert.Empty(t, a.HandleKey(KeyBack, false), "keys swallowed while locked")

	lock.Set(false)
	assert.Equal(t, OwnerContent, a.Owner())
	assert.Equal(t, []Owner{OwnerForceOverlay, OwnerContent}, owners)
}

func TestAuthority_StartsLockedWhenLockAlreadyActive(t *testing.T) {
	lock := NewLock()
	lock.Set(true)
	a := NewAuthority(zap.NewNop(), lock, nil, testMenu, "/home")
	assert.Equal(t, OwnerForceOverlay, a.Owner())
}

func TestAuthority_HandleRawKeyRoutesThroughFSM(t *testing.T) {
	a := NewAuthority(zap.NewNop(), NewLock(), fakeNav{back: true}, testMenu, "/home")

	effects := a.HandleRawKey(37, "", false) // Left
	require.Len(t, effects, 1)
	assert.Equal(t, EffectExpandSidebar, effects[0].Type)
	assert.Equal(t, OwnerSidebar, a.Owner())

	assert.Empty(t, a.HandleRawKey(999, "VolumeUp", false), "unmapped keys dropped")
}

func TestAuthority_BackConsultsNavigator(t *testing.T) {
	a := NewAuthority(zap.NewNop(), NewLock(), fakeNav{back: true}, testMenu, "/guide/detail")
	effects := a.HandleKey(KeyBack, false)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectNavigateBack, effects[0].Type)

	b := NewAuthority(zap.NewNop(), NewLock(), fakeNav{back: false}, testMenu, "/guide/detail")
	effects = b.HandleKey(KeyBack, false)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectNavigateRoot, effects[0].Type)
}

func TestAuthority_DialogLifecycle(t *testing.T) {
	a := NewAuthority(zap.NewNop(), NewLock(), nil, testMenu, "/home")

	require.NoError(t, a.OpenDialog(DialogSpec{ID: "logout", Buttons: []string{"Cancel", "Log out"}, Dismissable: true}))
	assert.Equal(t, OwnerDialog, a.Owner())

	a.CloseDialog()
	assert.Equal(t, OwnerContent, a.Owner())
	a.CloseDialog() // closing twice is a no-op
	assert.Equal(t, OwnerContent, a.Owner())
}

func TestAuthority_HardwareBackFailureIsNotFatal(t *testing.T) {
	a := NewAuthority(zap.NewNop(), NewLock(), nil, testMenu, "/home")
	a.RegisterHardwareBack(func() error { return errors.New("vendor api absent") })
	a.RegisterHardwareBack(nil)
	assert.Equal(t, OwnerContent, a.Owner())
}

func TestLock_WatchFiresOnTransitionsOnly(t *testing.T) {
	lock := NewLock()
	var fired []bool
	lock.Watch(func(v bool) { fired = append(fired, v) })

	lock.Set(true)
	lock.Set(true) // level unchanged, no event
	lock.Set(false)

	assert.Equal(t, []bool{true, false}, fired)
	assert.False(t, lock.Active())
}
