package chain

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/wfunc/hunt-game/internal/config"
	"github.com/wfunc/hunt-game/internal/errors"
	"github.com/wfunc/hunt-game/internal/models"
)

// Bridge 链上操作提交接口
type Bridge interface {
	// Submit 提交一笔操作员交易，返回链上交易哈希
	Submit(ctx context.Context, kind models.TxKind, gameID uint64,
		idempotencyKey string, payload map[string]interface{}) (string, error)
}

// Client 操作员桥接服务客户端。
// 桥接服务持有合约交互逻辑，本服务用操作员私钥对请求签名，
// 桥接端验签后代为上链。
type Client struct {
	endpoint string
	privKey  *secp256k1.PrivateKey
	http     *http.Client
}

// submitRequest 桥接请求体。Signature 覆盖除自身外的全部字段。
type submitRequest struct {
	Kind           models.TxKind          `json:"kind"`
	GameID         uint64                 `json:"game_id"`
	IdempotencyKey string                 `json:"idempotency_key"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	Timestamp      int64                  `json:"timestamp"`
	PubKey         string                 `json:"pub_key"`
	Signature      string                 `json:"signature,omitempty"`
}

// submitResponse 桥接响应体
type submitResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash"`
	Error   string `json:"error,omitempty"`
}

// NewClient 创建桥接客户端
func NewClient(cfg *config.ChainConfig) (*Client, error) {
	keyBytes, err := hex.DecodeString(cfg.OperatorKey)
	if err != nil || len(keyBytes) != 32 {
		return nil, errors.New(errors.ErrConfigValidate, "操作员私钥格式错误")
	}

	return &Client{
		endpoint: cfg.Endpoint,
		privKey:  secp256k1.PrivKeyFromBytes(keyBytes),
		http:     &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

// Submit 签名并提交操作员交易
func (c *Client) Submit(ctx context.Context, kind models.TxKind, gameID uint64,
	idempotencyKey string, payload map[string]interface{}) (string, error) {

	req := &submitRequest{
		Kind:           kind,
		GameID:         gameID,
		IdempotencyKey: idempotencyKey,
		Payload:        payload,
		Timestamp:      time.Now().Unix(),
		PubKey:         hex.EncodeToString(c.privKey.PubKey().SerializeCompressed()),
	}
	if err := c.sign(req); err != nil {
		return "", err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrChainSubmit)
	}

	url := fmt.Sprintf("%s/operator/submit", c.endpoint)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrChainSubmit)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrChainNotReady)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrChainSubmit)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrChainSubmit, "桥接服务返回%d: %s", resp.StatusCode, respBody)
	}

	var result submitResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", errors.Wrap(err, errors.ErrChainSubmit)
	}
	if !result.Success {
		return "", errors.Newf(errors.ErrChainRejected, "交易被拒绝: %s", result.Error)
	}
	return result.TxHash, nil
}

// sign 对规范化后的请求体做schnorr签名
func (c *Client) sign(req *submitRequest) error {
	req.Signature = ""
	canonical, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrChainSubmit)
	}

	digest := sha256.Sum256(canonical)
	sig, err := schnorr.Sign(c.privKey, digest[:])
	if err != nil {
		return errors.Wrap(err, errors.ErrChainSubmit)
	}
	req.Signature = hex.EncodeToString(sig.Serialize())
	return nil
}
