package resolver

// SupportedLanguages là tập ngôn ngữ mà fetcher hỗ trợ
var SupportedLanguages = []string{
	"c", "cpp", "csharp", "go", "java", "javascript", "kotlin", "python", "ruby", "swift",
}

// githubLang ánh xạ mã ngôn ngữ nội bộ sang mã ngôn ngữ trong danh sách database
// của GitHub. Thêm một ngôn ngữ mới chỉ cần thêm một dòng tại đây.
var githubLang = map[string]string{
	"c":      "cpp",
	"kotlin": "java",
}

// GithubLang trả về mã ngôn ngữ mà GitHub dùng trong danh sách database
func GithubLang(lang string) string {
	if mapped, ok := githubLang[lang]; ok {
		return mapped
	}
	return lang
}

// IsSupported kiểm tra ngôn ngữ có được hỗ trợ hay không
func IsSupported(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}
