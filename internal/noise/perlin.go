package noise

// Perlin2 returns classic gradient noise for (x, y). The result is nominally
// in [-1, 1] and exactly zero on integer lattice points.
func Perlin2(x, y float64) float64 {
	p := permTable()

	i := fastFloor(x)
	j := fastFloor(y)
	x -= float64(i)
	y -= float64(j)
	i &= 255
	j &= 255

	g00 := p[i+int(p[j])] % 12
	g01 := p[i+int(p[j+1])] % 12
	g10 := p[i+1+int(p[j])] % 12
	g11 := p[i+1+int(p[j+1])] % 12

	n00 := dot2(Gradients[g00], x, y)
	n01 := dot2(Gradients[g01], x, y-1)
	n10 := dot2(Gradients[g10], x-1, y)
	n11 := dot2(Gradients[g11], x-1, y-1)

	u := fade(x)
	v := fade(y)

	nx0 := lerp(n00, n10, u)
	nx1 := lerp(n01, n11, u)
	return lerp(nx0, nx1, v)
}

// Perlin3 returns classic gradient noise for (x, y, z).
func Perlin3(x, y, z float64) float64 {
	p := permTable()

	i := fastFloor(x)
	j := fastFloor(y)
	k := fastFloor(z)
	x -= float64(i)
	y -= float64(j)
	z -= float64(k)
	i &= 255
	j &= 255
	k &= 255

	g000 := p[i+int(p[j+int(p[k])])] % 12
	g010 := p[i+int(p[j+1+int(p[k])])] % 12
	g100 := p[i+1+int(p[j+int(p[k])])] % 12
	g110 := p[i+1+int(p[j+1+int(p[k])])] % 12
	g001 := p[i+int(p[j+int(p[k+1])])] % 12
	g011 := p[i+int(p[j+1+int(p[k+1])])] % 12
	g101 := p[i+1+int(p[j+int(p[k+1])])] % 12
	g111 := p[i+1+int(p[j+1+int(p[k+1])])] % 12

	n000 := dot3(Gradients[g000], x, y, z)
	n010 := dot3(Gradients[g010], x, y-1, z)
	n100 := dot3(Gradients[g100], x-1, y, z)
	n110 := dot3(Gradients[g110], x-1, y-1, z)
	n001 := dot3(Gradients[g001], x, y, z-1)
	n011 := dot3(Gradients[g011], x, y-1, z-1)
	n101 := dot3(Gradients[g101], x-1, y, z-1)
	n111 := dot3(Gradients[g111], x-1, y-1, z-1)

	u := fade(x)
	v := fade(y)
	w := fade(z)

	nx00 := lerp(n000, n100, u)
	nx01 := lerp(n001, n101, u)
	nx10 := lerp(n010, n110, u)
	nx11 := lerp(n011, n111, u)

	nxy0 := lerp(nx00, nx10, v)
	nxy1 := lerp(nx01, nx11, v)
	return lerp(nxy0, nxy1, w)
}
