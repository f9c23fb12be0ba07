package qrcode

import (
	"strconv"

	"github.com/wfunc/hunt-game/internal/errors"
)

// 可逆乘法混淆：token = (gameID*10000 + playerNumber) * K mod P。
// 纯数字串保持二维码最廉价的编码模式；混淆只防随手猜测，不是密码学保护，
// 安全性由近距离/BLE校验兜底。
const (
	// P 2^31-1，梅森素数
	modulus uint64 = 2147483647
	// K 与P互素的乘法因子
	multiplier uint64 = 387420489

	playerNumberBase uint64 = 10000
	maxGameID        uint64 = 214747
	maxPlayerNumber  uint64 = 9999
)

// K在模P下的乘法逆元，初始化时用扩展欧几里得计算
var multInverse = modInverse(multiplier, modulus)

// Encode 编码 (gameID, playerNumber) 为混淆后的数字串
func Encode(gameID uint64, playerNumber int) (string, error) {
	if gameID < 1 || gameID > maxGameID {
		return "", errors.Newf(errors.ErrInvalidParam, "gameID超出范围: %d", gameID)
	}
	if playerNumber < 1 || uint64(playerNumber) > maxPlayerNumber {
		return "", errors.Newf(errors.ErrInvalidParam, "玩家编号超出范围: %d", playerNumber)
	}

	n := gameID*playerNumberBase + uint64(playerNumber)
	cipher := n * multiplier % modulus
	return strconv.FormatUint(cipher, 10), nil
}

// Decode 解码混淆数字串，还原 (gameID, playerNumber)
func Decode(token string) (gameID uint64, playerNumber int, err error) {
	cipher, parseErr := strconv.ParseUint(token, 10, 64)
	if parseErr != nil {
		return 0, 0, errors.New(errors.ErrInvalidPayload, "非数字串")
	}
	if cipher == 0 || cipher >= modulus {
		return 0, 0, errors.New(errors.ErrInvalidPayload, "数值超出范围")
	}

	n := cipher * multInverse % modulus
	gameID = n / playerNumberBase
	pn := n % playerNumberBase

	if gameID < 1 || gameID > maxGameID || pn < 1 {
		return 0, 0, errors.New(errors.ErrInvalidPayload, "解码结果不合法")
	}

	return gameID, int(pn), nil
}

// modInverse 扩展欧几里得求模逆元
func modInverse(a, m uint64) uint64 {
	var t, newT int64 = 0, 1
	var r, newR = int64(m), int64(a)

	for newR != 0 {
		q := r / newR
		t, newT = newT, t-q*newT
		r, newR = newR, r-q*newR
	}

	if t < 0 {
		t += int64(m)
	}
	return uint64(t)
}
