package auth

import (
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/hunt-game/internal/errors"
)

// 测试消息格式
func TestBuildMessage(t *testing.T) {
	assert.Equal(t, "hunt:42:1700000000", BuildMessage("hunt", 42, 1700000000))
}

// 测试签名验证往返
func TestVerify(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	address := AddressFromPubKey(priv.PubKey())
	verifier := NewVerifier("hunt", 5*time.Minute)

	ts := time.Now().Unix()
	sig, err := Sign(priv, "hunt", 42, ts)
	require.NoError(t, err)

	assert.NoError(t, verifier.Verify(address, 42, ts, sig))

	// 换一个gameID签名失效（消息绑定到具体比赛）
	err = verifier.Verify(address, 43, ts, sig)
	assert.True(t, apperrors.Is(err, apperrors.ErrSignatureMismatch))

	// 他人地址无法冒用
	other, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	err = verifier.Verify(AddressFromPubKey(other.PubKey()), 42, ts, sig)
	assert.True(t, apperrors.Is(err, apperrors.ErrSignatureMismatch))
}

// 测试时间戳新鲜度
func TestVerifyStaleTimestamp(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	address := AddressFromPubKey(priv.PubKey())
	verifier := NewVerifier("hunt", time.Minute)

	// 过期消息
	stale := time.Now().Add(-10 * time.Minute).Unix()
	sig, err := Sign(priv, "hunt", 1, stale)
	require.NoError(t, err)
	err = verifier.Verify(address, 1, stale, sig)
	assert.True(t, apperrors.Is(err, apperrors.ErrStaleTimestamp))

	// 未来消息同样拒绝
	future := time.Now().Add(10 * time.Minute).Unix()
	sig, err = Sign(priv, "hunt", 1, future)
	require.NoError(t, err)
	err = verifier.Verify(address, 1, future, sig)
	assert.True(t, apperrors.Is(err, apperrors.ErrStaleTimestamp))
}

// 测试非法输入
func TestVerifyMalformedInput(t *testing.T) {
	verifier := NewVerifier("hunt", 5*time.Minute)
	ts := time.Now().Unix()

	// 非hex地址
	err := verifier.Verify("not-hex", 1, ts, "00")
	assert.Error(t, err)

	// hex但不是合法公钥
	err = verifier.Verify("deadbeef", 1, ts, "00")
	assert.Error(t, err)

	// 合法地址 + 非法签名
	priv, genErr := secp256k1.GeneratePrivateKey()
	require.NoError(t, genErr)
	err = verifier.Verify(AddressFromPubKey(priv.PubKey()), 1, ts, "zz")
	assert.Error(t, err)
}
