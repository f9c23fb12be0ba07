package game

import (
	"time"

	"github.com/wfunc/hunt-game/internal/errors"
	"github.com/wfunc/hunt-game/internal/geo"
	"github.com/wfunc/hunt-game/internal/models"
	"github.com/wfunc/hunt-game/internal/qrcode"
)

// 声明校验器：纯函数 (claim, Snapshot) -> (事件, 错误)。
// 身份在连接认证时已确立，这里只校验游戏规则；
// 校验不触碰共享状态，应用时由会话在锁内复核。

// 心跳信标保留编号。组织方在场地内张贴固定信标二维码，
// 心跳扫自己或信标均可。
const beaconPlayerNumber = 9999

// ValidateKillClaim 校验猎杀声明
func ValidateKillClaim(claim *KillClaim, snap *Snapshot) (*KillValidated, error) {
	if snap.Phase != models.PhaseActive {
		return nil, errors.New(errors.ErrWrongPhase, "比赛未在进行中")
	}

	gameID, targetNumber, err := qrcode.Decode(claim.QRPayload)
	if err != nil {
		return nil, err
	}
	if gameID != snap.GameID {
		return nil, errors.Newf(errors.ErrInvalidPayload, "二维码属于其他比赛: %d", gameID)
	}

	targetAddr, ok := snap.Numbers[targetNumber]
	if !ok {
		return nil, errors.Newf(errors.ErrInvalidPayload, "编号%d无对应玩家", targetNumber)
	}

	hunter, ok := snap.Players[claim.Hunter]
	if !ok {
		return nil, errors.New(errors.ErrPlayerNotFound, "猎人未注册")
	}
	if !hunter.IsAlive {
		return nil, errors.New(errors.ErrHunterNotAlive)
	}
	if targetAddr == claim.Hunter {
		return nil, errors.New(errors.ErrCannotSelfKill)
	}

	target := snap.Players[targetAddr]
	if !target.IsAlive {
		return nil, errors.New(errors.ErrTargetNotAlive)
	}

	// 只能猎杀当前分配的目标，防止扫到任意玩家就算击杀
	if assigned, ok := snap.Targets[claim.Hunter]; !ok || assigned != targetAddr {
		return nil, errors.New(errors.ErrNotYourTarget)
	}

	hunterPos := geo.Point{Lat: claim.Lat, Lng: claim.Lng}
	if !hunterPos.Valid() {
		return nil, errors.New(errors.ErrInvalidCoordinate)
	}

	validated := &KillValidated{
		Hunter:    claim.Hunter,
		Target:    targetAddr,
		HunterPos: hunterPos,
	}

	// 近距离证明：GPS距离达标或BLE侦测到目标地址，二者其一。
	// 防远程/伪造击杀。
	if snap.RequireProximity {
		bleNearby := false
		for _, addr := range claim.BLENearby {
			if addr == targetAddr {
				bleNearby = true
				break
			}
		}

		if target.LastPing != nil {
			validated.TargetPos = target.LastPing.Point
			validated.Distance = geo.Haversine(hunterPos, target.LastPing.Point)
			if validated.Distance > snap.KillProximity && !bleNearby {
				return nil, errors.Newf(errors.ErrTooFarAway,
					"距离%.0f米，阈值%.0f米", validated.Distance, snap.KillProximity)
			}
		} else if !bleNearby {
			// 目标无定位记录时只能靠BLE佐证
			return nil, errors.New(errors.ErrNoProximityCorroboration)
		}
	} else if target.LastPing != nil {
		validated.TargetPos = target.LastPing.Point
		validated.Distance = geo.Haversine(hunterPos, target.LastPing.Point)
	}

	return validated, nil
}

// ValidateHeartbeatClaim 校验心跳声明
func ValidateHeartbeatClaim(claim *HeartbeatClaim, snap *Snapshot) (*HeartbeatValidated, error) {
	if snap.Phase != models.PhaseActive {
		return nil, errors.New(errors.ErrWrongPhase, "比赛未在进行中")
	}

	p, ok := snap.Players[claim.Address]
	if !ok {
		return nil, errors.New(errors.ErrPlayerNotFound)
	}
	if !p.IsAlive {
		return nil, errors.New(errors.ErrPlayerNotAlive)
	}

	gameID, number, err := qrcode.Decode(claim.QRPayload)
	if err != nil {
		return nil, err
	}
	if gameID != snap.GameID {
		return nil, errors.Newf(errors.ErrInvalidPayload, "二维码属于其他比赛: %d", gameID)
	}
	if number != p.PlayerNumber && number != beaconPlayerNumber {
		return nil, errors.New(errors.ErrInvalidPayload, "心跳只接受本人或信标二维码")
	}

	pos := geo.Point{Lat: claim.Lat, Lng: claim.Lng}
	if !pos.Valid() {
		return nil, errors.New(errors.ErrInvalidCoordinate)
	}

	return &HeartbeatValidated{Address: claim.Address, Pos: pos}, nil
}

// ValidateCheckInClaim 校验集合签到声明
func ValidateCheckInClaim(claim *CheckInClaim, snap *Snapshot) (*CheckInValidated, error) {
	if snap.Phase != models.PhaseCheckIn {
		return nil, errors.New(errors.ErrWrongPhase, "不在签到阶段")
	}

	p, ok := snap.Players[claim.Address]
	if !ok {
		return nil, errors.New(errors.ErrPlayerNotFound)
	}

	pos := geo.Point{Lat: claim.Lat, Lng: claim.Lng}
	if !pos.Valid() {
		return nil, errors.New(errors.ErrInvalidCoordinate)
	}

	if d := geo.Haversine(pos, snap.MeetingPoint); d > snap.CheckInRadius {
		return nil, errors.Newf(errors.ErrOutsideMeetingPoint,
			"距集合点%.0f米，要求%.0f米内", d, snap.CheckInRadius)
	}

	// 可选的二维码佐证：提供时必须是本人的
	if claim.QRPayload != "" {
		gameID, number, err := qrcode.Decode(claim.QRPayload)
		if err != nil {
			return nil, err
		}
		if gameID != snap.GameID || number != p.PlayerNumber {
			return nil, errors.New(errors.ErrInvalidPayload, "签到二维码与本人不符")
		}
	}

	return &CheckInValidated{Address: claim.Address, Pos: pos}, nil
}

// ValidateLocationClaim 校验位置上报。
// 只记录事实，不做淘汰判定；出圈惩罚由主循环统一执行，
// 避免GPS瞬时漂移直接杀死玩家。
func ValidateLocationClaim(claim *LocationClaim, snap *Snapshot) (*LocationValidated, error) {
	if snap.Phase != models.PhaseActive && snap.Phase != models.PhasePregame &&
		snap.Phase != models.PhaseCheckIn {
		return nil, errors.New(errors.ErrWrongPhase)
	}

	p, ok := snap.Players[claim.Address]
	if !ok {
		return nil, errors.New(errors.ErrPlayerNotFound)
	}
	if !p.IsAlive {
		return nil, errors.New(errors.ErrPlayerNotAlive)
	}

	pos := geo.Point{Lat: claim.Lat, Lng: claim.Lng}
	if !pos.Valid() {
		return nil, errors.New(errors.ErrInvalidCoordinate)
	}

	at := time.Now()
	if claim.Timestamp > 0 {
		at = time.Unix(claim.Timestamp, 0)
	}

	return &LocationValidated{Address: claim.Address, Pos: pos, At: at}, nil
}
