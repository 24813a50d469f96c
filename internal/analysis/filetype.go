package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Hara602/fsSentry/internal/model"
	"github.com/h2non/filetype"
)

// Result 伪装检测结果
type Result struct {
	IsMasquerade bool            // 文件头与声明后缀不符
	RealExt      string          // 文件头判定的真实类型
	DeclaredExt  string          // 文件名声明的后缀
	Risk         model.RiskLevel // 不符时的风险等级
	Message      string
}

// TypeInspector 按文件头魔数核对声明后缀，识别改后缀伪装的文件。
// aliasMap 是兼容性白名单：哪些“表里不一”是合法的（docx 本质是 zip 等）。
type TypeInspector struct {
	aliasMap map[string]map[string]bool
}

func NewTypeInspector() *TypeInspector {
	t := &TypeInspector{aliasMap: make(map[string]map[string]bool)}
	t.initRules()
	return t
}

func (t *TypeInspector) initRules() {
	allow := func(realType string, allowedExts ...string) {
		if _, ok := t.aliasMap[realType]; !ok {
			t.aliasMap[realType] = make(map[string]bool)
		}
		t.aliasMap[realType][realType] = true
		for _, ext := range allowedExts {
			t.aliasMap[realType][ext] = true
		}
	}

	// ZIP 家族是最大的误报源：Office 文档、jar、apk 本质都是 zip
	allow("zip",
		"docx", "docm", "dotx", "dotm",
		"xlsx", "xlsm", "xltx", "xltm",
		"pptx", "pptm", "potx", "potm",
		"jar", "war", "ear",
		"apk",
		"odt", "ods", "odp",
		"crx", "whl", "nupkg",
	)
	allow("xml", "svg", "html", "htm", "kml", "plist", "config")
	allow("mp4", "m4v", "mov", "qt")
	allow("ogg", "ogv", "oga", "spx")
	// PE 的各种后缀在格式上等价
	allow("exe", "dll", "sys", "scr", "cpl", "ocx")
	allow("gz", "gzip", "tgz")
	allow("rar")
	allow("7z")
}

// Inspect 读取文件头并与声明后缀比对。
// 纯文本类文件没有魔数，识别不出类型时默认信任。
func (t *TypeInspector) Inspect(filePath string) (*Result, error) {
	rawExt := filepath.Ext(filePath)
	if rawExt == "" {
		return &Result{Message: "no extension"}, nil
	}
	declaredExt := strings.ToLower(strings.TrimPrefix(rawExt, "."))

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	// 262 字节是 filetype 库建议的匹配长度
	head := make([]byte, 262)
	n, err := file.Read(head)
	if err != nil && n == 0 {
		return &Result{DeclaredExt: declaredExt, Message: "empty file"}, nil
	}

	kind, _ := filetype.Match(head[:n])
	if kind == filetype.Unknown {
		return &Result{RealExt: "unknown", DeclaredExt: declaredExt}, nil
	}

	realExt := kind.Extension
	if realExt == declaredExt {
		return &Result{RealExt: realExt, DeclaredExt: declaredExt}, nil
	}
	if allowed, ok := t.aliasMap[realExt]; ok && allowed[declaredExt] {
		return &Result{RealExt: realExt, DeclaredExt: declaredExt}, nil
	}

	// 可执行文件伪装成其他格式，风险最高
	risk := model.RiskMedium
	if realExt == "exe" || realExt == "elf" || realExt == "dll" {
		risk = model.RiskHigh
	}

	return &Result{
		IsMasquerade: true,
		RealExt:      realExt,
		DeclaredExt:  declaredExt,
		Risk:         risk,
		Message:      fmt.Sprintf("type mismatch: header is '%s' but file claims '%s'", realExt, declaredExt),
	}, nil
}
