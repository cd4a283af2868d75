package marble

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const sharpenKernel = "0 -1 0 -1 5 -1 0 -1 0"

type SVGOption func(*svgRenderer)

type svgRenderer struct {
	output  Dimensions
	sharpen bool
}

// WithOutputSize declares the pixel size of the document. The viewBox stays
// on the internal frame so rasterizers scale the same content.
func WithOutputSize(d Dimensions) SVGOption {
	return func(r *svgRenderer) { r.output = d }
}

func WithSharpen() SVGOption { return func(r *svgRenderer) { r.sharpen = true } }

// RenderSVG composes the base fill and both vein layers into a standalone
// SVG document. Output is byte-stable for equal inputs.
func RenderSVG(p Params, pair Pair, frame Dimensions, opts ...SVGOption) []byte {
	r := svgRenderer{output: frame}
	for _, opt := range opts {
		opt(&r)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		r.output.Width, r.output.Height, frame.Width, frame.Height)

	buf.WriteString("<defs>\n")
	for i, layer := range p.Layers {
		renderVeinFilter(&buf, veinFilterID(i), layer, p, frame)
	}
	if r.sharpen {
		renderSharpenFilter(&buf, frame)
	}
	buf.WriteString("</defs>\n")

	if r.sharpen {
		buf.WriteString(`<g filter="url(#sharpen)">` + "\n")
	}
	fmt.Fprintf(&buf, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`+"\n",
		frame.Width, frame.Height, pair.Base)
	for i, layer := range p.Layers {
		fmt.Fprintf(&buf, `<rect x="0" y="0" width="%d" height="%d" fill="%s" opacity="%s" filter="url(#%s)"/>`+"\n",
			frame.Width, frame.Height, pair.Vein, num(layer.Opacity, 4), veinFilterID(i))
	}
	if r.sharpen {
		buf.WriteString("</g>\n")
	}

	buf.WriteString("</svg>\n")
	return buf.Bytes()
}

func veinFilterID(i int) string {
	return "vein" + strconv.Itoa(i+1)
}

// renderVeinFilter writes one layer's graph: a low-frequency warp field
// displaces a thresholded high-frequency field, which is softened and used
// as the alpha mask for the vein-colored source rectangle.
func renderVeinFilter(buf *bytes.Buffer, id string, l Layer, p Params, frame Dimensions) {
	fmt.Fprintf(buf, `<filter id="%s" x="0" y="0" width="%d" height="%d" filterUnits="userSpaceOnUse" color-interpolation-filters="sRGB">`+"\n",
		id, frame.Width, frame.Height)

	fmt.Fprintf(buf, `<feTurbulence type="fractalNoise" baseFrequency="%s %s" numOctaves="2" seed="%d" result="warp"/>`+"\n",
		num(l.WarpFrequency[0], 6), num(l.WarpFrequency[1], 6), l.WarpSeed)
	fmt.Fprintf(buf, `<feTurbulence type="turbulence" baseFrequency="%s %s" numOctaves="%d" seed="%d" result="noise"/>`+"\n",
		num(l.VeinFrequency[0], 6), num(l.VeinFrequency[1], 6), p.Octaves, l.VeinSeed)
	buf.WriteString(`<feColorMatrix in="noise" type="saturate" values="0" result="gray"/>` + "\n")

	gamma := fmt.Sprintf(`type="gamma" amplitude="%s" exponent="%s" offset="0"`,
		num(p.VeinContrast, 4), num(l.Gamma, 4))
	renderTransfer(buf, "gray", "curved", gamma)

	table := fmt.Sprintf(`type="discrete" tableValues="%s"`, tableValues(p.Table))
	renderTransfer(buf, "curved", "mask", table)

	fmt.Fprintf(buf, `<feDisplacementMap in="mask" in2="warp" scale="%s" xChannelSelector="R" yChannelSelector="G" result="warped"/>`+"\n",
		num(l.Displacement, 3))
	fmt.Fprintf(buf, `<feGaussianBlur in="warped" stdDeviation="%s" result="soft"/>`+"\n",
		num(l.Blur, 3))
	buf.WriteString(`<feColorMatrix in="soft" type="luminanceToAlpha" result="alpha"/>` + "\n")
	buf.WriteString(`<feComposite in="SourceGraphic" in2="alpha" operator="in"/>` + "\n")
	buf.WriteString("</filter>\n")
}

func renderTransfer(buf *bytes.Buffer, in, result, attrs string) {
	fmt.Fprintf(buf, `<feComponentTransfer in="%s" result="%s">`+"\n", in, result)
	for _, ch := range []string{"R", "G", "B"} {
		fmt.Fprintf(buf, `<feFunc%s %s/>`+"\n", ch, attrs)
	}
	buf.WriteString("</feComponentTransfer>\n")
}

func renderSharpenFilter(buf *bytes.Buffer, frame Dimensions) {
	fmt.Fprintf(buf, `<filter id="sharpen" x="0" y="0" width="%d" height="%d" filterUnits="userSpaceOnUse">`+"\n",
		frame.Width, frame.Height)
	fmt.Fprintf(buf, `<feConvolveMatrix order="3" kernelMatrix="%s" preserveAlpha="true"/>`+"\n", sharpenKernel)
	buf.WriteString("</filter>\n")
}

func tableValues(t Table) string {
	parts := make([]string, len(t))
	for i, on := range t {
		if on {
			parts[i] = "1"
		} else {
			parts[i] = "0"
		}
	}
	return strings.Join(parts, " ")
}

func num(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
