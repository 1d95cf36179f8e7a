package noise

// Value2 returns 2D value noise in [-1, 1]. Lattice corners carry a hashed
// value from the permutation table and are blended with the quintic fade.
func Value2(x, y float64) float64 {
	p := permTable()

	i := fastFloor(x)
	j := fastFloor(y)
	u := fade(x - float64(i))
	v := fade(y - float64(j))
	i &= 255
	j &= 255

	n00 := latticeValue(p[i+int(p[j])])
	n10 := latticeValue(p[i+1+int(p[j])])
	n01 := latticeValue(p[i+int(p[j+1])])
	n11 := latticeValue(p[i+1+int(p[j+1])])

	nx0 := lerp(n00, n10, u)
	nx1 := lerp(n01, n11, u)
	return lerp(nx0, nx1, v)*2 - 1
}

// Value3 returns 3D value noise in [-1, 1].
func Value3(x, y, z float64) float64 {
	p := permTable()

	i := fastFloor(x)
	j := fastFloor(y)
	k := fastFloor(z)
	u := fade(x - float64(i))
	v := fade(y - float64(j))
	w := fade(z - float64(k))
	i &= 255
	j &= 255
	k &= 255

	n000 := latticeValue(p[i+int(p[j+int(p[k])])])
	n100 := latticeValue(p[i+1+int(p[j+int(p[k])])])
	n010 := latticeValue(p[i+int(p[j+1+int(p[k])])])
	n110 := latticeValue(p[i+1+int(p[j+1+int(p[k])])])
	n001 := latticeValue(p[i+int(p[j+int(p[k+1])])])
	n101 := latticeValue(p[i+1+int(p[j+int(p[k+1])])])
	n011 := latticeValue(p[i+int(p[j+1+int(p[k+1])])])
	n111 := latticeValue(p[i+1+int(p[j+1+int(p[k+1])])])

	nx00 := lerp(n000, n100, u)
	nx10 := lerp(n010, n110, u)
	nx01 := lerp(n001, n101, u)
	nx11 := lerp(n011, n111, u)

	nxy0 := lerp(nx00, nx10, v)
	nxy1 := lerp(nx01, nx11, v)
	return lerp(nxy0, nxy1, w)*2 - 1
}

func latticeValue(h uint8) float64 { return float64(h) / 255.0 }
