package quadapk

import (
	"fmt"
	"sort"
	"strings"
)

const manifestTemplate = `<?xml version="1.0" encoding="utf-8"?>
<manifest xmlns:android="http://schemas.android.com/apk/res/android"
        package="%s"
        android:versionCode="%d"
        android:versionName="%s">
    <uses-sdk android:targetSdkVersion="%d" android:minSdkVersion="%d" />
    <uses-feature android:glEsVersion="%s" android:required="true"></uses-feature>%s%s
    <application %s >
        %s
        <activity %s >
            <meta-data android:name="android.app.lib_name" android:value="%s" />
            <intent-filter>
                <action android:name="android.intent.action.MAIN" />
                <category android:name="android.intent.category.LAUNCHER" />
            </intent-filter>
        </activity>
    </application>
</manifest>
`

// renderManifest produces the AndroidManifest.xml content for one unit.
// Free-form attribute maps are emitted in sorted key order so the same
// settings always render the same bytes.
func renderManifest(cfg *TargetConfig, unitName string, services []string) string {
	var app strings.Builder
	app.WriteString("\n            android:hasCode=\"true\" android:label=\"" + cfg.Label + "\"")
	if cfg.Icon != "" {
		app.WriteString("\n            android:icon=\"" + cfg.Icon + "\"")
	}
	if cfg.Fullscreen {
		app.WriteString("\n            android:theme=\"@android:style/Theme.DeviceDefault.NoActionBar.Fullscreen\"")
	}
	for _, k := range sortedKeys(cfg.ApplicationAttributes) {
		app.WriteString("\n            " + k + "=\"" + cfg.ApplicationAttributes[k] + "\"")
	}

	var act strings.Builder
	act.WriteString("\n                android:name=\".MainActivity\"")
	act.WriteString("\n                android:label=\"" + cfg.Label + "\"")
	act.WriteString("\n                android:configChanges=\"orientation|keyboardHidden|screenSize\"")
	for _, k := range sortedKeys(cfg.ActivityAttributes) {
		act.WriteString("\n                " + k + "=\"" + cfg.ActivityAttributes[k] + "\"")
	}

	var feats strings.Builder
	for _, f := range cfg.Features {
		required := true
		if f.Required != nil {
			required = *f.Required
		}
		version := ""
		if f.Version != nil {
			version = fmt.Sprintf("android:version=\"%s\"", *f.Version)
		}
		fmt.Fprintf(&feats, "\n\t<uses-feature android:name=\"%s\" android:required=\"%t\" %s/>", f.Name, required, version)
	}

	var perms strings.Builder
	for _, p := range cfg.Permissions {
		maxSdk := ""
		if p.MaxSdkVersion != nil {
			maxSdk = fmt.Sprintf("android:maxSdkVersion=\"%d\"", *p.MaxSdkVersion)
		}
		fmt.Fprintf(&perms, "\n\t<uses-permission android:name=\"%s\" %s/>", p.Name, maxSdk)
	}

	var svc strings.Builder
	for _, s := range services {
		fmt.Fprintf(&svc, "\n\t<service android:name=\"%s\" android:enabled=\"true\"></service>", s)
	}

	return fmt.Sprintf(manifestTemplate,
		strings.ReplaceAll(cfg.PackageName, "-", "_"),
		cfg.VersionCode,
		cfg.VersionName,
		cfg.TargetSdkVersion,
		cfg.MinSdkVersion,
		glEsVersion(cfg.OpenGLESMajor, cfg.OpenGLESMinor),
		feats.String(),
		perms.String(),
		app.String(),
		svc.String(),
		act.String(),
		unitName,
	)
}

// glEsVersion encodes the OpenGL ES requirement the way the manifest
// schema expects, 16 bits per component.
func glEsVersion(major, minor int) string {
	return fmt.Sprintf("0x%04d%04d", major, minor)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// defaultLayoutXML is the placeholder layout resource every package
// carries; rendering happens on the native surface, not through views.
const defaultLayoutXML = `<?xml version="1.0" encoding="utf-8"?>
<LinearLayout xmlns:android="http://schemas.android.com/apk/res/android"
    android:orientation="vertical"
    android:layout_width="fill_parent"
    android:layout_height="fill_parent"
    >
</LinearLayout>
`
