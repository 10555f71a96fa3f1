package screenshot

// placeholderSVG is the image served whenever a real screenshot cannot be
// produced. Kept inline so the binary has no asset dependencies.
const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="800" height="600" viewBox="0 0 800 600">
  <rect width="800" height="600" fill="#f1f5f9"/>
  <rect x="40" y="40" width="720" height="48" rx="8" fill="#e2e8f0"/>
  <rect x="40" y="120" width="460" height="24" rx="6" fill="#e2e8f0"/>
  <rect x="40" y="160" width="560" height="24" rx="6" fill="#e2e8f0"/>
  <rect x="40" y="220" width="720" height="340" rx="8" fill="#e2e8f0"/>
  <text x="400" y="400" text-anchor="middle" font-family="sans-serif" font-size="24" fill="#94a3b8">screenshot unavailable</text>
</svg>
`

// Placeholder returns the fallback artifact. The body is shared, not
// copied; callers must not mutate it.
func Placeholder() Artifact {
	return Artifact{
		Body:        []byte(placeholderSVG),
		ContentType: "image/svg+xml",
		Placeholder: true,
	}
}
