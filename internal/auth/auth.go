package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"github.com/wfunc/hunt-game/internal/errors"
)

// 身份模型：地址即压缩公钥的hex编码（66个hex字符）。
// 客户端对 "{prefix}:{gameID}:{unixTimestamp}" 的sha256做schnorr签名，
// 服务端校验签名与时间戳新鲜度，从而证明对地址的控制权。

// BuildMessage 构造待签名消息
func BuildMessage(prefix string, gameID uint64, ts int64) string {
	return fmt.Sprintf("%s:%d:%d", prefix, gameID, ts)
}

// AddressFromPubKey 从公钥推导地址
func AddressFromPubKey(pub *secp256k1.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}

// Verifier 签名消息校验器
type Verifier struct {
	prefix    string
	freshness time.Duration
}

// NewVerifier 创建校验器
func NewVerifier(prefix string, freshness time.Duration) *Verifier {
	return &Verifier{
		prefix:    prefix,
		freshness: freshness,
	}
}

// Verify 校验签名消息
// 时间戳偏差超出允许窗口（双向，容忍客户端时钟漂移）即拒绝。
func (v *Verifier) Verify(address string, gameID uint64, ts int64, sigHex string) error {
	now := time.Now().Unix()
	drift := now - ts
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > v.freshness {
		return errors.Newf(errors.ErrStaleTimestamp, "偏差%d秒", drift)
	}

	pubBytes, err := hex.DecodeString(address)
	if err != nil {
		return errors.New(errors.ErrSignatureMismatch, "地址不是合法的hex公钥")
	}
	pubKey, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return errors.Wrap(err, errors.ErrSignatureMismatch, "公钥解析失败")
	}

	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return errors.New(errors.ErrSignatureMismatch, "签名不是合法的hex")
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return errors.Wrap(err, errors.ErrSignatureMismatch, "签名解析失败")
	}

	hash := sha256.Sum256([]byte(BuildMessage(v.prefix, gameID, ts)))
	if !sig.Verify(hash[:], pubKey) {
		return errors.New(errors.ErrSignatureMismatch)
	}

	return nil
}

// Sign 对消息签名（客户端SDK与测试使用）
func Sign(priv *secp256k1.PrivateKey, prefix string, gameID uint64, ts int64) (string, error) {
	hash := sha256.Sum256([]byte(BuildMessage(prefix, gameID, ts)))
	sig, err := schnorr.Sign(priv, hash[:])
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig.Serialize()), nil
}
