package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 测试大圆距离计算
func TestHaversine(t *testing.T) {
	// 天安门 -> 上海外滩，约1068公里
	beijing := Point{Lat: 39.9087, Lng: 116.3975}
	shanghai := Point{Lat: 31.2397, Lng: 121.4903}

	d := Haversine(beijing, shanghai)
	assert.InDelta(t, 1068000, d, 15000)

	// 同一点距离为0
	assert.Zero(t, Haversine(beijing, beijing))

	// 近距离：约111米（0.001度纬度差）
	a := Point{Lat: 31.0, Lng: 121.0}
	b := Point{Lat: 31.001, Lng: 121.0}
	assert.InDelta(t, 111.2, Haversine(a, b), 1.0)
}

// 测试边界判断
func TestInZone(t *testing.T) {
	center := Point{Lat: 31.0, Lng: 121.0}

	inside := Point{Lat: 31.0005, Lng: 121.0} // 约55米
	outside := Point{Lat: 31.01, Lng: 121.0}  // 约1112米

	assert.True(t, InZone(inside, center, 100))
	assert.False(t, InZone(outside, center, 100))

	// 圆心本身在圈内
	assert.True(t, InZone(center, center, 1))
}

// 测试坐标合法性
func TestPointValid(t *testing.T) {
	assert.True(t, Point{Lat: 31.0, Lng: 121.0}.Valid())
	assert.True(t, Point{Lat: -90, Lng: 180}.Valid())
	assert.False(t, Point{Lat: 91, Lng: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lng: -181}.Valid())
}

// 测试观众坐标脱敏
func TestFuzz(t *testing.T) {
	p := Point{Lat: 31.239701, Lng: 121.490301}

	// 量化网格100米：脱敏后与原点的偏移不超过约1.5格
	fuzzed := Fuzz(p, 100)
	assert.Less(t, Haversine(p, fuzzed), 250.0)

	// 零网格不做处理
	assert.Equal(t, p, Fuzz(p, 0))

	// 多次脱敏结果应有抖动（不总是同一个点）
	same := true
	first := Fuzz(p, 100)
	for i := 0; i < 8; i++ {
		if Fuzz(p, 100) != first {
			same = false
			break
		}
	}
	assert.False(t, same)
}
