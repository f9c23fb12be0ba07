package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

// PasswordTestSuite 密码工具测试套件
type PasswordTestSuite struct {
	suite.Suite
}

// 测试密码哈希
func (suite *PasswordTestSuite) TestHashPassword() {
	password := "OperatorPassword123!"

	hash, err := HashPassword(password)
	suite.NoError(err)
	suite.NotEmpty(hash)
	suite.NotEqual(password, hash)

	// 哈希应该是argon2id格式
	suite.True(strings.HasPrefix(hash, "$argon2id$"))
}

// 测试相同密码生成不同哈希
func (suite *PasswordTestSuite) TestHashPasswordUniqueness() {
	password := "SamePassword123"

	hash1, err1 := HashPassword(password)
	hash2, err2 := HashPassword(password)

	suite.NoError(err1)
	suite.NoError(err2)
	suite.NotEqual(hash1, hash2) // salt不同
}

// 测试密码验证
func (suite *PasswordTestSuite) TestVerifyPassword() {
	password := "CorrectPassword456"
	hash, _ := HashPassword(password)

	valid, err := VerifyPassword(password, hash)
	suite.NoError(err)
	suite.True(valid)

	invalid, err := VerifyPassword("WrongPassword", hash)
	suite.NoError(err)
	suite.False(invalid)

	// 大小写敏感
	invalidCase, err := VerifyPassword("correctpassword456", hash)
	suite.NoError(err)
	suite.False(invalidCase)
}

// 测试无效哈希格式
func (suite *PasswordTestSuite) TestVerifyPasswordInvalidFormat() {
	_, err := VerifyPassword("password", "not-a-valid-hash")
	suite.Error(err)

	_, err = VerifyPassword("password", "$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA")
	suite.Error(err)
}

// 测试自定义配置
func (suite *PasswordTestSuite) TestHashPasswordWithConfig() {
	config := &PasswordConfig{
		Time:    2,
		Memory:  32 * 1024,
		Threads: 2,
		KeyLen:  32,
	}

	hash, err := HashPasswordWithConfig("ConfiguredPassword", config)
	suite.NoError(err)
	suite.Contains(hash, "m=32768,t=2,p=2")

	valid, err := VerifyPassword("ConfiguredPassword", hash)
	suite.NoError(err)
	suite.True(valid)
}

// 测试随机字符串生成
func (suite *PasswordTestSuite) TestGenerateRandomString() {
	s1, err := GenerateRandomString(32)
	suite.NoError(err)
	suite.Len(s1, 32)

	s2, err := GenerateRandomString(32)
	suite.NoError(err)
	suite.NotEqual(s1, s2)
}

func TestPasswordSuite(t *testing.T) {
	suite.Run(t, new(PasswordTestSuite))
}
