package errclass

import (
	"golang.org/x/text/language"

	"github.com/haven-project/haven/pkg/model"
)

// remedyCatalog holds the ordered suggested actions for each error kind in
// one language.
type remedyCatalog struct {
	tag      language.Tag
	remedies map[model.ErrorKind][]string
}

func (c *remedyCatalog) lookup(kind model.ErrorKind) []string {
	if r, ok := c.remedies[kind]; ok {
		return append([]string(nil), r...)
	}
	return append([]string(nil), c.remedies[model.KindUnknown]...)
}

var catalogEN = &remedyCatalog{
	tag: language.English,
	remedies: map[model.ErrorKind][]string{
		model.KindNotFound: {
			"Check that the file exists at the expected location",
			"Restore the latest backup",
			"Re-run the application setup",
		},
		model.KindPermissionDenied: {
			"Run the application with elevated permissions",
			"Check file and folder permissions",
			"Add an exception in your antivirus software",
			"Move the data to a different location",
		},
		model.KindLocked: {
			"Close other programs using this file",
			"Wait a moment and try again",
			"Restart the computer if the lock persists",
		},
		model.KindCorrupt: {
			"Restore the latest backup",
			"Run the built-in repair",
			"Create a fresh resource (data will be lost)",
		},
		model.KindDiskFull: {
			"Free disk space",
			"Delete unnecessary files",
			"Move the data to another disk",
		},
		model.KindConfigurationError: {
			"Check the configured path",
			"Remove special characters from the path",
			"Use a shorter path",
		},
		model.KindUnknown: {
			"Restart the application",
			"Check the log files",
			"Contact your system administrator",
		},
	},
}

var catalogTR = &remedyCatalog{
	tag: language.Turkish,
	remedies: map[model.ErrorKind][]string{
		model.KindNotFound: {
			"Dosyanın doğru konumda olduğunu kontrol edin",
			"Yedekten geri yükleme yapın",
			"Uygulama kurulumunu yeniden çalıştırın",
		},
		model.KindPermissionDenied: {
			"Uygulamayı yönetici olarak çalıştırın",
			"Dosya ve klasör izinlerini kontrol edin",
			"Antivirüs yazılımında istisna ekleyin",
			"Verileri farklı bir konuma taşıyın",
		},
		model.KindLocked: {
			"Bu dosyayı kullanan diğer programları kapatın",
			"Biraz bekleyip tekrar deneyin",
			"Kilit devam ederse bilgisayarı yeniden başlatın",
		},
		model.KindCorrupt: {
			"Yedekten geri yükleme yapın",
			"Yerleşik onarım aracını çalıştırın",
			"Yeni bir kaynak oluşturun (veriler kaybolur)",
		},
		model.KindDiskFull: {
			"Disk alanı açın",
			"Gereksiz dosyaları silin",
			"Verileri başka bir diske taşıyın",
		},
		model.KindConfigurationError: {
			"Yapılandırılan yolu kontrol edin",
			"Yoldaki özel karakterleri kaldırın",
			"Daha kısa bir yol kullanın",
		},
		model.KindUnknown: {
			"Uygulamayı yeniden başlatın",
			"Log dosyalarını kontrol edin",
			"Sistem yöneticisine başvurun",
		},
	},
}

var catalogs = []*remedyCatalog{catalogEN, catalogTR}

var catalogMatcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Turkish,
})

// matchCatalog picks the best remedy catalog for the requested languages.
func matchCatalog(langs []string) *remedyCatalog {
	if len(langs) == 0 {
		return catalogEN
	}
	tags := make([]language.Tag, 0, len(langs))
	for _, l := range langs {
		if tag, err := language.Parse(l); err == nil {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return catalogEN
	}
	_, index, _ := catalogMatcher.Match(tags...)
	return catalogs[index]
}
