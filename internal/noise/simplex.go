package noise

const (
	f2 = 0.36602540378443865 // (sqrt(3) - 1) / 2
	g2 = 0.21132486540518713 // (3 - sqrt(3)) / 6
	f3 = 1.0 / 3.0
	g3 = 1.0 / 6.0
)

// Simplex2 returns 2D simplex noise, approximately in [-1, 1].
func Simplex2(x, y float64) float64 {
	p := permTable()

	s := (x + y) * f2
	i := fastFloor(x + s)
	j := fastFloor(y + s)

	t := float64(i+j) * g2
	x0 := x - (float64(i) - t)
	y0 := y - (float64(j) - t)

	// Lower or upper triangle of the skewed cell.
	i1, j1 := 0, 1
	if x0 > y0 {
		i1, j1 = 1, 0
	}

	x1 := x0 - float64(i1) + g2
	y1 := y0 - float64(j1) + g2
	x2 := x0 - 1 + 2*g2
	y2 := y0 - 1 + 2*g2

	ii := i & 255
	jj := j & 255
	gi0 := p[ii+int(p[jj])] % 12
	gi1 := p[ii+i1+int(p[jj+j1])] % 12
	gi2 := p[ii+1+int(p[jj+1])] % 12

	n0 := corner2(gi0, x0, y0)
	n1 := corner2(gi1, x1, y1)
	n2 := corner2(gi2, x2, y2)

	return 70 * (n0 + n1 + n2)
}

func corner2(g uint8, x, y float64) float64 {
	t := 0.5 - x*x - y*y
	if t < 0 {
		return 0
	}
	t *= t
	return t * t * dot2(Gradients[g], x, y)
}

// Simplex3 returns 3D simplex noise, approximately in [-1, 1].
func Simplex3(x, y, z float64) float64 {
	p := permTable()

	s := (x + y + z) * f3
	i := fastFloor(x + s)
	j := fastFloor(y + s)
	k := fastFloor(z + s)

	t := float64(i+j+k) * g3
	x0 := x - (float64(i) - t)
	y0 := y - (float64(j) - t)
	z0 := z - (float64(k) - t)

	var i1, j1, k1, i2, j2, k2 int
	if x0 >= y0 {
		switch {
		case y0 >= z0:
			i1, j1, k1, i2, j2, k2 = 1, 0, 0, 1, 1, 0
		case x0 >= z0:
			i1, j1, k1, i2, j2, k2 = 1, 0, 0, 1, 0, 1
		default:
			i1, j1, k1, i2, j2, k2 = 0, 0, 1, 1, 0, 1
		}
	} else {
		switch {
		case y0 < z0:
			i1, j1, k1, i2, j2, k2 = 0, 0, 1, 0, 1, 1
		case x0 < z0:
			i1, j1, k1, i2, j2, k2 = 0, 1, 0, 0, 1, 1
		default:
			i1, j1, k1, i2, j2, k2 = 0, 1, 0, 1, 1, 0
		}
	}

	x1 := x0 - float64(i1) + g3
	y1 := y0 - float64(j1) + g3
	z1 := z0 - float64(k1) + g3
	x2 := x0 - float64(i2) + 2*g3
	y2 := y0 - float64(j2) + 2*g3
	z2 := z0 - float64(k2) + 2*g3
	x3 := x0 - 1 + 3*g3
	y3 := y0 - 1 + 3*g3
	z3 := z0 - 1 + 3*g3

	ii := i & 255
	jj := j & 255
	kk := k & 255
	gi0 := p[ii+int(p[jj+int(p[kk])])] % 12
	gi1 := p[ii+i1+int(p[jj+j1+int(p[kk+k1])])] % 12
	gi2 := p[ii+i2+int(p[jj+j2+int(p[kk+k2])])] % 12
	gi3 := p[ii+1+int(p[jj+1+int(p[kk+1])])] % 12

	n0 := corner3(gi0, x0, y0, z0)
	n1 := corner3(gi1, x1, y1, z1)
	n2 := corner3(gi2, x2, y2, z2)
	n3 := corner3(gi3, x3, y3, z3)

	return 32 * (n0 + n1 + n2 + n3)
}

func corner3(g uint8, x, y, z float64) float64 {
	t := 0.6 - x*x - y*y - z*z
	if t < 0 {
		return 0
	}
	t *= t
	return t * t * dot3(Gradients[g], x, y, z)
}
