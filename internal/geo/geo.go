package geo

import (
	"math"
	"math/rand"
)

// 地球平均半径（米）
const earthRadiusMeters = 6371000.0

// Point 经纬度坐标
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid 判断坐标是否在合法范围内
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Haversine 计算两点间大圆距离（米）
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// InZone 判断点是否位于圆形边界内（含边界）
func InZone(p, center Point, radiusMeters float64) bool {
	return Haversine(p, center) <= radiusMeters
}

// Fuzz 观众坐标脱敏：量化到 gridMeters 网格并叠加半格内的随机抖动。
// 返回的坐标精度不足以还原玩家真实位置。
func Fuzz(p Point, gridMeters float64) Point {
	if gridMeters <= 0 {
		return p
	}

	// 1度纬度约111320米；经度按纬度收缩
	latStep := gridMeters / 111320.0
	lngScale := math.Cos(p.Lat * math.Pi / 180)
	if lngScale < 0.01 {
		lngScale = 0.01
	}
	lngStep := gridMeters / (111320.0 * lngScale)

	quantLat := math.Round(p.Lat/latStep) * latStep
	quantLng := math.Round(p.Lng/lngStep) * lngStep

	return Point{
		Lat: quantLat + (rand.Float64()-0.5)*latStep,
		Lng: quantLng + (rand.Float64()-0.5)*lngStep,
	}
}
