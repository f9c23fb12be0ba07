package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalerrors "github.com/wfunc/hunt-game/internal/errors"
	"github.com/wfunc/hunt-game/internal/geo"
	"github.com/wfunc/hunt-game/internal/models"
	"github.com/wfunc/hunt-game/internal/qrcode"
)

const testGameID uint64 = 77

// 北京某公园附近的测试坐标
var (
	meetingPoint = geo.Point{Lat: 39.9042, Lng: 116.4074}
	nearMeeting  = geo.Point{Lat: 39.90425, Lng: 116.40745} // 约8米
	farAway      = geo.Point{Lat: 39.9200, Lng: 116.4300}   // 约2.5公里
)

func testSnapshot(t *testing.T, phase models.GamePhase, n int) *Snapshot {
	t.Helper()
	snap := &Snapshot{
		GameID:           testGameID,
		Phase:            phase,
		Players:          make(map[string]*PlayerState),
		Numbers:          make(map[int]string),
		Targets:          make(map[string]string),
		MeetingPoint:     meetingPoint,
		CheckInRadius:    50,
		KillProximity:    30,
		RequireProximity: true,
	}
	for i := 1; i <= n; i++ {
		a := addr(i)
		snap.Players[a] = &PlayerState{
			Address:      a,
			PlayerNumber: i,
			IsAlive:      true,
			CheckedIn:    true,
		}
		snap.Numbers[i] = a
	}
	// 简单环：1→2→…→n→1
	for i := 1; i <= n; i++ {
		snap.Targets[addr(i)] = addr(i%n+1)
	}
	return snap
}

func qrFor(t *testing.T, gameID uint64, number int) string {
	t.Helper()
	token, err := qrcode.Encode(gameID, number)
	require.NoError(t, err)
	return token
}

func withPing(snap *Snapshot, player string, p geo.Point) {
	snap.Players[player].LastPing = &PingState{Point: p, InZone: true, At: time.Now()}
}

func TestValidateKillClaim(t *testing.T) {
	snap := testSnapshot(t, models.PhaseActive, 4)
	withPing(snap, addr(2), nearMeeting)

	claim := &KillClaim{
		Hunter:    addr(1),
		QRPayload: qrFor(t, testGameID, 2),
		Lat:       meetingPoint.Lat,
		Lng:       meetingPoint.Lng,
	}
	v, err := ValidateKillClaim(claim, snap)
	require.NoError(t, err)
	assert.Equal(t, addr(1), v.Hunter)
	assert.Equal(t, addr(2), v.Target)
	assert.InDelta(t, 9, v.Distance, 5, "GPS距离应在阈值内")
}

func TestValidateKillClaimWrongPhase(t *testing.T) {
	snap := testSnapshot(t, models.PhaseCheckIn, 4)
	claim := &KillClaim{Hunter: addr(1), QRPayload: qrFor(t, testGameID, 2)}
	_, err := ValidateKillClaim(claim, snap)
	assertCode(t, err, internalerrors.ErrWrongPhase)
}

func TestValidateKillClaimForeignQR(t *testing.T) {
	snap := testSnapshot(t, models.PhaseActive, 4)
	claim := &KillClaim{
		Hunter:    addr(1),
		QRPayload: qrFor(t, testGameID+1, 2), // 别场比赛的二维码
		Lat:       meetingPoint.Lat,
		Lng:       meetingPoint.Lng,
	}
	_, err := ValidateKillClaim(claim, snap)
	assertCode(t, err, internalerrors.ErrInvalidPayload)
}

func TestValidateKillClaimNotYourTarget(t *testing.T) {
	snap := testSnapshot(t, models.PhaseActive, 4)
	withPing(snap, addr(3), nearMeeting)

	// 1的目标是2，扫3无效
	claim := &KillClaim{
		Hunter:    addr(1),
		QRPayload: qrFor(t, testGameID, 3),
		Lat:       meetingPoint.Lat,
		Lng:       meetingPoint.Lng,
	}
	_, err := ValidateKillClaim(claim, snap)
	assertCode(t, err, internalerrors.ErrNotYourTarget)
}

func TestValidateKillClaimSelfKill(t *testing.T) {
	snap := testSnapshot(t, models.PhaseActive, 4)
	claim := &KillClaim{
		Hunter:    addr(1),
		QRPayload: qrFor(t, testGameID, 1),
		Lat:       meetingPoint.Lat,
		Lng:       meetingPoint.Lng,
	}
	_, err := ValidateKillClaim(claim, snap)
	assertCode(t, err, internalerrors.ErrCannotSelfKill)
}

func TestValidateKillClaimTooFar(t *testing.T) {
	snap := testSnapshot(t, models.PhaseActive, 4)
	withPing(snap, addr(2), farAway)

	claim := &KillClaim{
		Hunter:    addr(1),
		QRPayload: qrFor(t, testGameID, 2),
		Lat:       meetingPoint.Lat,
		Lng:       meetingPoint.Lng,
	}
	_, err := ValidateKillClaim(claim, snap)
	assertCode(t, err, internalerrors.ErrTooFarAway)
}

func TestValidateKillClaimBLEFallback(t *testing.T) {
	snap := testSnapshot(t, models.PhaseActive, 4)
	withPing(snap, addr(2), farAway)

	// GPS距离超限但蓝牙侦测到目标：GPS在室内常漂移，蓝牙佐证放行
	claim := &KillClaim{
		Hunter:    addr(1),
		QRPayload: qrFor(t, testGameID, 2),
		Lat:       meetingPoint.Lat,
		Lng:       meetingPoint.Lng,
		BLENearby: []string{addr(4), addr(2)},
	}
	_, err := ValidateKillClaim(claim, snap)
	assert.NoError(t, err)
}

func TestValidateKillClaimNoCorroboration(t *testing.T) {
	snap := testSnapshot(t, models.PhaseActive, 4)
	// 目标从未上报位置，也无蓝牙佐证

	claim := &KillClaim{
		Hunter:    addr(1),
		QRPayload: qrFor(t, testGameID, 2),
		Lat:       meetingPoint.Lat,
		Lng:       meetingPoint.Lng,
	}
	_, err := ValidateKillClaim(claim, snap)
	assertCode(t, err, internalerrors.ErrNoProximityCorroboration)
}

func TestValidateKillClaimDeadActors(t *testing.T) {
	snap := testSnapshot(t, models.PhaseActive, 4)
	withPing(snap, addr(2), nearMeeting)

	snap.Players[addr(2)].IsAlive = false
	claim := &KillClaim{
		Hunter:    addr(1),
		QRPayload: qrFor(t, testGameID, 2),
		Lat:       meetingPoint.Lat,
		Lng:       meetingPoint.Lng,
	}
	_, err := ValidateKillClaim(claim, snap)
	assertCode(t, err, internalerrors.ErrTargetNotAlive)

	snap.Players[addr(2)].IsAlive = true
	snap.Players[addr(1)].IsAlive = false
	_, err = ValidateKillClaim(claim, snap)
	assertCode(t, err, internalerrors.ErrHunterNotAlive)
}

func TestValidateHeartbeatClaim(t *testing.T) {
	snap := testSnapshot(t, models.PhaseActive, 4)

	// 扫自己的码
	claim := &HeartbeatClaim{
		Address:   addr(1),
		QRPayload: qrFor(t, testGameID, 1),
		Lat:       meetingPoint.Lat,
		Lng:       meetingPoint.Lng,
	}
	v, err := ValidateHeartbeatClaim(claim, snap)
	require.NoError(t, err)
	assert.Equal(t, addr(1), v.Address)

	// 扫场地信标
	claim.QRPayload = qrFor(t, testGameID, beaconPlayerNumber)
	_, err = ValidateHeartbeatClaim(claim, snap)
	assert.NoError(t, err)

	// 扫别人的码不算心跳
	claim.QRPayload = qrFor(t, testGameID, 2)
	_, err = ValidateHeartbeatClaim(claim, snap)
	assertCode(t, err, internalerrors.ErrInvalidPayload)
}

func TestValidateCheckInClaim(t *testing.T) {
	snap := testSnapshot(t, models.PhaseCheckIn, 4)

	claim := &CheckInClaim{Address: addr(1), Lat: nearMeeting.Lat, Lng: nearMeeting.Lng}
	v, err := ValidateCheckInClaim(claim, snap)
	require.NoError(t, err)
	assert.Equal(t, addr(1), v.Address)

	// 集合点外
	claim = &CheckInClaim{Address: addr(1), Lat: farAway.Lat, Lng: farAway.Lng}
	_, err = ValidateCheckInClaim(claim, snap)
	assertCode(t, err, internalerrors.ErrOutsideMeetingPoint)

	// 未注册
	claim = &CheckInClaim{Address: addr(99), Lat: nearMeeting.Lat, Lng: nearMeeting.Lng}
	_, err = ValidateCheckInClaim(claim, snap)
	assertCode(t, err, internalerrors.ErrPlayerNotFound)
}

func TestValidateLocationClaim(t *testing.T) {
	snap := testSnapshot(t, models.PhaseActive, 4)

	claim := &LocationClaim{Address: addr(1), Lat: meetingPoint.Lat, Lng: meetingPoint.Lng}
	v, err := ValidateLocationClaim(claim, snap)
	require.NoError(t, err)
	assert.Equal(t, addr(1), v.Address)

	// 非法坐标
	claim = &LocationClaim{Address: addr(1), Lat: 91, Lng: 0}
	_, err = ValidateLocationClaim(claim, snap)
	assertCode(t, err, internalerrors.ErrInvalidCoordinate)

	// 死人不上报
	snap.Players[addr(1)].IsAlive = false
	claim = &LocationClaim{Address: addr(1), Lat: meetingPoint.Lat, Lng: meetingPoint.Lng}
	_, err = ValidateLocationClaim(claim, snap)
	assertCode(t, err, internalerrors.ErrPlayerNotAlive)
}
